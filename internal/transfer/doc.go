// Package transfer splits outgoing attachments into FileChunk records and
// reassembles incoming chunks into complete files.
package transfer
