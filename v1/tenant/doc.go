// Package tenant carries the current tenant identity through the call chain
// and manages the tenant registry. The binding is an explicit
// context.Context value, never ambient process state, so concurrent requests
// on shared worker pools cannot observe each other's tenant.
package tenant
