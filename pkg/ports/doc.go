/*
Package ports defines the driven ports (interfaces) of the Waypoint orchestration core.

These interfaces decouple the core logic from the collaborators it consumes: the
language model, the remote travel tools, the prompt catalogue and, optionally, a
distributed lock shared by several replicas.

# Key Interfaces

  - Generator / StreamingGenerator: the opaque language model ("prompt in, text out").
  - IntentExtractor: turns a user message into one or more Intents.
  - ToolCaller: invokes a named remote tool and returns its raw response envelope.
  - PromptSource: looks up prompt templates by name and language.
  - TurnLocker: serializes turns of the same session across processes.
*/
package ports
