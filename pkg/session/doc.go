/*
Package session owns the conversational state of every session.

The Manager keeps a process-wide map of ConversationContexts, created lazily and
removed only by explicit Clear calls. All mutations of a context (intent history,
result cache, mentioned entities, anchors and preferences) go through Manager
methods so that the parallel steps of a plan can write to the same session safely.

Turns of one session are serialized with WithTurn, which combines a ref-counted
in-process mutex with an optional distributed TurnLocker for multi-replica
deployments.
*/
package session
