// Package protocol owns the board command grammar carried in radio text payloads.
//
// Ownership boundary:
// - command model and constructors
// - encode (always current arity)
// - decode (current and legacy arities, ordered matchers)
//
// Wire forms:
//
//	/msg [new,<colorId>,<authorKey>]<body>
//	/msg [<loraMsgId>,<colorId>,<authorKey>]<body>
//	/reply <new,<colorId>,<authorKey>>[<parentLoraMsgId>]<body>
//	/reply <<loraMsgId>,<colorId>,<authorKey>>[<parentLoraMsgId>]<body>
//	/color [<loraMsgId>]<authorKey>,<colorId>
//	/author [<loraMsgId>]<authorKey>
//	/archive [<loraMsgId>]<authorKey>
//	/pin [<loraMsgId>]<authorKey>
//	/ack <loraMsgId>
//
// Deployed nodes still emit the legacy one-field headers (`/msg [new]body`,
// `/reply <id>[parent]body`), so decode accepts both arities.
package protocol
