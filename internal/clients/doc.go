// Package clients fans the broker's aggregate state out to registered
// clients.
//
// A client registered by a caller acting across users lands in the Global
// scope and hears every state change. Other clients land in their user's
// scope and only hear about that user. Publishing copies the target list
// under a read lock and calls clients outside it.
package clients
