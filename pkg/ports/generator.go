package ports

import "context"

// Generator is the language model collaborator.
type Generator interface {
	// GenerateContent returns the model's text for prompt.
	GenerateContent(ctx context.Context, prompt string) (string, error)
}

// StreamingGenerator is implemented by generators able to stream partial text.
type StreamingGenerator interface {
	Generator
	// GenerateStream calls onChunk for every text fragment as it arrives.
	// An error returned by onChunk aborts the stream and is returned as is.
	GenerateStream(ctx context.Context, prompt string, onChunk func(string) error) error
}

// PromptSource looks up prompt templates.
type PromptSource interface {
	// Prompt returns the template registered under name for lang, falling back to the
	// default language. ok is false when no template of that name exists.
	Prompt(name, lang string) (tmpl string, ok bool)
}
