package realtime

import (
	"fmt"
	"strings"
)

// Fixed technical parameters of every phone session. Both audio directions
// use the narrowband telephony codec Twilio streams in, so no transcoding
// happens anywhere in the bridge.
const (
	audioFormat        = "g711_ulaw"
	voice              = "alloy"
	transcriptionModel = "whisper-1"
	vadThreshold       = 0.5
	vadPrefixMS        = 300
	vadSilenceMS       = 500
	temperature        = 0.7
	maxResponseTokens  = 4096
)

// SessionConfig is the session.update payload.
type SessionConfig struct {
	Modalities              []string       `json:"modalities"`
	Instructions            string         `json:"instructions"`
	Voice                   string         `json:"voice"`
	InputAudioFormat        string         `json:"input_audio_format"`
	OutputAudioFormat       string         `json:"output_audio_format"`
	InputAudioTranscription *Transcription `json:"input_audio_transcription,omitempty"`
	TurnDetection           *TurnDetection `json:"turn_detection,omitempty"`
	Temperature             float64        `json:"temperature"`
	MaxResponseOutputTokens int            `json:"max_response_output_tokens"`
}

type Transcription struct {
	Model string `json:"model"`
}

type TurnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold"`
	PrefixPaddingMS   int     `json:"prefix_padding_ms"`
	SilenceDurationMS int     `json:"silence_duration_ms"`
}

// BusinessProfile is the per-business input to the session configurator.
type BusinessProfile struct {
	Name               string
	Description        string
	CustomInstructions string
}

// NewSessionConfig builds the one session.update a bridge sends right after
// the realtime connection opens, before any audio is relayed. Pure function
// of the business profile; everything else is a system constant.
func NewSessionConfig(p BusinessProfile) SessionConfig {
	return SessionConfig{
		Modalities:              []string{"text", "audio"},
		Instructions:            BuildInstructions(p),
		Voice:                   voice,
		InputAudioFormat:        audioFormat,
		OutputAudioFormat:       audioFormat,
		InputAudioTranscription: &Transcription{Model: transcriptionModel},
		TurnDetection: &TurnDetection{
			Type:              "server_vad",
			Threshold:         vadThreshold,
			PrefixPaddingMS:   vadPrefixMS,
			SilenceDurationMS: vadSilenceMS,
		},
		Temperature:             temperature,
		MaxResponseOutputTokens: maxResponseTokens,
	}
}

// BuildInstructions renders the system prompt. Business description and
// custom instructions are embedded verbatim.
func BuildInstructions(p BusinessProfile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a helpful AI assistant for %s.\n\n", p.Name)
	b.WriteString("Business Information:\n")
	fmt.Fprintf(&b, "- Name: %s\n", p.Name)
	fmt.Fprintf(&b, "- Description: %s\n\n", p.Description)
	b.WriteString(`Your role:
- You are answering customer calls when the business is busy
- Be professional, friendly, and helpful
- Provide information about the business services
- If you don't know something specific, offer to take a message or have someone call back
- Keep responses natural and conversational for phone conversation
- Always try to be helpful and positive
- You can help with general inquiries, take messages, provide business hours, and basic information
`)
	if strings.TrimSpace(p.CustomInstructions) != "" {
		b.WriteString("\nAdditional Instructions:\n")
		b.WriteString(p.CustomInstructions)
		b.WriteString("\n")
	}
	b.WriteString(`
Guidelines for phone conversations:
- Speak naturally and conversationally
- Don't be overly verbose - keep responses concise but helpful
- Ask clarifying questions when needed
- If you can't help with something specific, offer alternatives like taking a message
- Be empathetic and understanding
- Thank the caller for their patience since the business is currently busy`)
	return b.String()
}

// Greeting is what the agent says before the caller speaks, so the line is
// never silent after pickup.
func Greeting(businessName string) string {
	return fmt.Sprintf(
		"Say the following greeting: Hello! Thank you for calling %s. I'm your AI assistant, and I'm here to help you while our team is busy. What can I help you with today?",
		businessName,
	)
}
