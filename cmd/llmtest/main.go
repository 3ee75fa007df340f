package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/pharmaflow/pharmacy-assistant/internal/chat"
)

// Manual smoke test for the LLM providers. Run it locally with a .env file
// to confirm the fallback chain responds before deploying.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	messages := []chat.ChatMessage{
		{Role: chat.ChatRoleUser, Content: "Hi, I have a sore throat, what can I take?"},
		{Role: chat.ChatRoleAssistant, Content: "Throat lozenges and paracetamol can help with a sore throat. Would you like me to check what we have in stock?"},
		{Role: chat.ChatRoleUser, Content: "Yes, I'd like to order paracetamol please"},
	}

	systemPrompt := []string{
		"You are a careful pharmacy assistant. Keep responses brief and never give emergency advice.",
	}

	req := chat.LLMRequest{
		System:      systemPrompt,
		Messages:    messages,
		MaxTokens:   200,
		Temperature: 0.2,
	}

	fmt.Println("LLM Provider Test")
	fmt.Println("-----------------")

	geminiKey := os.Getenv("GEMINI_API_KEY")
	if geminiKey == "" {
		fmt.Println("Skipping Gemini test (GEMINI_API_KEY not set)")
		return
	}

	geminiClient, err := chat.NewGeminiLLMClient(ctx, geminiKey, os.Getenv("GEMINI_MODEL_ID"))
	if err != nil {
		log.Fatalf("create gemini client: %v", err)
	}
	defer func() { _ = geminiClient.Close() }()

	start := time.Now()
	resp, err := geminiClient.Complete(ctx, req)
	elapsed := time.Since(start)
	if err != nil {
		log.Fatalf("gemini error: %v", err)
	}

	fmt.Printf("Gemini response (%v):\n%s\n", elapsed.Round(time.Millisecond), resp.Text)
	fmt.Printf("Tokens: in=%d, out=%d\n", resp.Usage.InputTokens, resp.Usage.OutputTokens)
}
