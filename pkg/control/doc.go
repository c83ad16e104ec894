// Package control implements the Control & Introspection Surface:
// health, status, metrics, and policy-switch endpoints layered over
// the proxy, selection, and discovery components.
package control
