// Package wiki models page titles and namespaces.
//
// Namespaces partition pages; they are the unit of coarse read-permission
// pre-filtering in host→backend assertions. Virtual namespaces (Media,
// Special) have negative ids and never hold pages.
//
// ProbeTitle builds a title that is guaranteed not to exist in a namespace.
// Asking the permission engine whether that title is readable answers
// "can this user read this namespace" without being skewed by protections
// placed on individual pages.
package wiki
