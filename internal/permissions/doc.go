// Package permissions decides who may read, edit or use the assistant.
//
// Everyone is in the implicit group "*"; registered users are also in
// "user". A right is held when any of those groups, or an explicit group,
// has been granted it. Reading or editing a page additionally requires
// every namespace restriction and page protection for that action to list
// one of the user's groups. Virtual namespaces are never readable.
package permissions
