// Package decoder turns framed protocol lines into typed ir.Event values.
//
// A line has the shape
//
//	<prefix> DEKU Inspect: <body>
//
// where <prefix> is a run of bracketed identifiers whose roles are given by
// a Layout. Bodies are matched against an ordered rule table; the first rule
// whose keyword and pattern match produces the event. Lines without the
// marker are foreign output and lines with the marker that no rule accepts
// are unparsed. Neither has any effect beyond being reported.
package decoder
