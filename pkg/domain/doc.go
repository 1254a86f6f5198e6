/*
Package domain contains the core data model of the Waypoint orchestration engine.

It defines the conversational state of a session, the intents extracted from user
messages, the execution plans built from them and the results of running those plans.
This package is kept free of I/O and persistence, following Hexagonal Architecture
principles; adapters and services live elsewhere.

# Key Entities

  - ConversationContext: per-session state (preferences, anchors, intent history, result cache, mentions).
  - Intent: a classified user goal with confidence and extracted entities.
  - ExecutionPlan / ExecutionStep: a small DAG of tool calls derived from an intent.
  - StepResult / PlanExecutionResult: outcomes of running a plan.
  - StreamEvent: the frames of the server-sent-event protocol.
*/
package domain
