// Package bridge serves the store to front ends over HTTP.
//
// Read routes under /api mirror the store's visitor reads and return JSON.
// POST /api/query runs an ad-hoc read statement. GET /api/events upgrades
// to a websocket that receives an engine.Update after every burst that
// changed something, telling views whether to reload inspections, the
// outline, or both.
package bridge
