package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pion/webrtc/v3"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/realtime-relay/backend/internal/config"
	"github.com/zhouzirui/realtime-relay/backend/internal/logger"
	realtimemodel "github.com/zhouzirui/realtime-relay/backend/internal/model/realtime"
	"github.com/zhouzirui/realtime-relay/backend/internal/service/realtime"
	"github.com/zhouzirui/realtime-relay/backend/internal/service/transcript"
)

func main() {
	mode := flag.String("mode", "", "probe mode: session, offer or parse")
	model := flag.String("model", "", "realtime model, defaults to REALTIME_DEFAULT_MODEL")
	voice := flag.String("voice", "", "voice for session mode, defaults to REALTIME_DEFAULT_VOICE")
	input := flag.String("in", "", "parse mode: transcript file path, - for stdin")
	text := flag.String("text", "", "parse mode: inline transcript text")
	timeout := flag.Duration("timeout", 45*time.Second, "request timeout")
	flag.Parse()

	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewWithWriter(os.Stderr, cfg.Log.Level, "console")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	if envErr != nil {
		log.Debug().Err(envErr).Msg("no .env file loaded")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch *mode {
	case "session":
		provider := newProvider(cfg, log)
		runSession(ctx, provider, pick(*model, cfg.Realtime.DefaultModel), pick(*voice, cfg.Realtime.DefaultVoice), log)
	case "offer":
		provider := newProvider(cfg, log)
		runOffer(ctx, provider, cfg, pick(*model, cfg.Realtime.DefaultModel), log)
	case "parse":
		runParse(*input, *text, log)
	default:
		flag.Usage()
		log.Fatal().Msg("choose a mode with -mode=session, -mode=offer or -mode=parse")
	}
}

func newProvider(cfg *config.Config, log zerolog.Logger) *realtime.Provider {
	if !cfg.Provider.Enabled() {
		log.Fatal().Msg("OPENAI_API_KEY is not set")
	}
	return realtime.NewProvider(cfg.Provider.BaseURL, cfg.Provider.APIKey, cfg.Provider.Timeout, log)
}

func pick(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

// runSession mints an ephemeral credential and prints the provider response.
func runSession(ctx context.Context, provider *realtime.Provider, model, voice string, log zerolog.Logger) {
	log.Info().Str("model", model).Str("voice", voice).Msg("requesting ephemeral session")

	payload, err := provider.CreateSession(ctx, realtimemodel.SessionRequest{Model: model, Voice: voice})
	if err != nil {
		log.Fatal().Err(err).Msg("session request failed")
	}

	fmt.Println(string(payload.Body))
}

// runOffer builds a throwaway offer with an event channel and relays it, which
// checks the credential and the SDP endpoint without a browser.
func runOffer(ctx context.Context, provider *realtime.Provider, cfg *config.Config, model string, log zerolog.Logger) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create peer connection")
	}
	defer pc.Close()

	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio); err != nil {
		log.Fatal().Err(err).Msg("failed to add audio transceiver")
	}
	if _, err := pc.CreateDataChannel(cfg.Realtime.DataChannel, nil); err != nil {
		log.Fatal().Err(err).Msg("failed to create data channel")
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create offer")
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		log.Fatal().Err(err).Msg("failed to set local description")
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		log.Fatal().Err(ctx.Err()).Msg("ice gathering timed out")
	}

	log.Info().Str("model", model).Msg("relaying offer")
	answer, err := provider.ExchangeSDP(ctx, model, pc.LocalDescription().SDP)
	if err != nil {
		log.Fatal().Err(err).Msg("sdp exchange failed")
	}

	fmt.Println(answer)
}

// runParse prints the structured form of a raw transcript.
func runParse(path, text string, log zerolog.Logger) {
	raw := text
	if raw == "" {
		var (
			data []byte
			err  error
		)
		switch path {
		case "":
			log.Fatal().Msg("parse mode needs -in or -text")
		case "-":
			data, err = io.ReadAll(os.Stdin)
		default:
			data, err = os.ReadFile(path)
		}
		if err != nil {
			log.Fatal().Err(err).Msg("failed to read transcript")
		}
		raw = string(data)
	}

	result := transcript.NewBuilder().Parse(raw)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		log.Fatal().Err(err).Msg("failed to encode result")
	}
}
