// Package brep defines the boundary representation entity graph consumed
// by the tessellation and intersection core. A Solid holds flat arrays of
// curves, surfaces, vertices, edges, trims, loops and faces; entities
// refer to one another by index.
package brep
