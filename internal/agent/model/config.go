package model

// ================ Config ================
type ConversationConfig struct {
	TTL string `envconfig:"CONVERSATION_TTL" default:"24h"`
}

type IdentifyModelConfig struct {
	Model       string  `envconfig:"IDENTIFY_MODEL" default:"gemini-2.5-flash-lite"`
	MaxTokens   int     `envconfig:"IDENTIFY_MAX_TOKENS" default:"1024"`
	Temperature float32 `envconfig:"IDENTIFY_TEMPERATURE" default:"0.1"`
}

type RetrievalConfig struct {
	TopK      int     `envconfig:"RETRIEVAL_TOP_K" default:"5"`
	Threshold float64 `envconfig:"RETRIEVAL_THRESHOLD" default:"0.60"`
}
