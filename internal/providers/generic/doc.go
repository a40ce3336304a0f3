// Package generic implements providers.Source for HTML reading sites
// described by CSS selectors in the configuration. When a selector is left
// empty the source falls back to the DOM heuristics for chapter links and
// page images.
//
// Page elements may expose transform parameters as attributes (an XOR key,
// a tile permutation, cipher material, a tile descriptor or a companion page
// number); they are attached to the page URL as carriers for the response
// pipeline.
package generic
