// Package extract pulls the embedded content link out of mirror HTML pages.
//
// Mirror pages rarely expose the document as a clean anchor; the link usually
// sits in an iframe/embed src, an onclick handler, or a script variable. The
// heuristics here try each location in turn and report what they found as a
// Link, which may hold no candidate, one, or several.
package extract
