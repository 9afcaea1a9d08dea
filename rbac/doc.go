// Package rbac resolves role-based permissions for the MaintainPro auth core.
//
// Roles form a directed graph through inheritance. The registry validates the
// graph for cycles once at load time, and traversal still carries a visited
// set so a malformed graph can never loop. Permission matches may carry
// conditions (ownership, warehouse scoping); every condition must pass, and an
// unknown condition key fails closed.
package rbac
