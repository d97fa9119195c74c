// Package syncmsg defines the context-sync wire contract shared by clients and
// hosts: message kinds, status codes, context items and the tagged message
// variants, plus the JSON codec mapping them to and from the flat envelope
// carried on the transport.
package syncmsg
