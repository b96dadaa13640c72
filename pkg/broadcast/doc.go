/*
Package broadcast fans repository state out to browser clients over
websocket.

# Architecture

	             Broadcast(frame)
	                   │ marshal once
	     ┌─────────────┼─────────────┐
	     ▼             ▼             ▼
	 session A     session B     session C
	 send chan     send chan     send chan
	     │             │             │
	  writer        writer        writer
	 goroutine     goroutine     goroutine

Each session owns a buffered send queue and one writer goroutine. Delivery
within a session is ordered; the init frame is enqueued before the session
joins the fan-out set, so it always precedes any update. A session whose
queue is full cannot keep up and is closed (with a warning and an error
counter bump) rather than blocking the broadcast loop; the other sessions
still receive the frame.

Clients may send {"type":"refresh","repo":...} to request a re-parse; the
hub routes it to the registry callback.

Close delivers a normal-closure control message to every client before
tearing the sessions down.
*/
package broadcast
