// Package astro holds what the star-field layers share: the stage error
// type and the sentinel errors each layer raises.
//
// Layers, in pipeline order:
//   - dewarp: sidereal drift removal (L2)
//   - frame: accumulation, smoothing and thresholding (L3)
//   - segment: connected-component labelling and centroids (L4)
//   - platesolve: solver collaborator, WCS and catalogue matching (L5)
//
// Dependency rule: a layer may depend on lower layers and on this
// package, never on a higher layer. pipeline/ is the composition root.
package astro
