package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-audio/wav"
	"github.com/spf13/cobra"

	"github.com/satriahrh/arunika/speakerid/domain/entities"
	"github.com/satriahrh/arunika/speakerid/internal/recognition"
	"github.com/satriahrh/arunika/speakerid/usecase"
)

type identifyOptions struct {
	file          string
	container     string
	windowSize    int
	stepSize      int
	chunkSize     int
	chunkDelay    time.Duration
	speakers      []string
	sampleRate    int
	channels      int
	bitsPerSample int
	info          bool
}

func identifyCommand() *cobra.Command {
	opts := &identifyOptions{}

	cmd := &cobra.Command{
		Use:   "identify",
		Short: "Stream a local audio file through the identification pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.info {
				return printWavInfo(cmd.OutOrStdout(), opts.file)
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.Debug)
			if err != nil {
				return err
			}
			defer logger.Sync()

			speakerService, profiles, err := newSpeakerService(cfg, logger)
			if err != nil {
				return err
			}
			identifier := recognition.NewIdentifier(speakerService, logger,
				recognition.WithPollInterval(cfg.Recognition.PollInterval),
				recognition.WithPollRetries(cfg.Recognition.PollRetries))
			factory := recognition.NewFactory(identifier, logger,
				recognition.WithDispatchInterval(cfg.Recognition.DispatchInterval))
			service := usecase.NewIdentificationService(factory, logger, usecase.WithProfileLister(profiles))

			return runIdentify(cmd.Context(), cmd.OutOrStdout(), service, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.file, "file", "f", "", "Audio file to identify")
	flags.StringVar(&opts.container, "container", "", "Container of the file: wav or raw (default from extension)")
	flags.IntVar(&opts.windowSize, "window", 2, "Snippet length in seconds")
	flags.IntVar(&opts.stepSize, "step", 1, "Seconds between snippet starts")
	flags.IntVar(&opts.chunkSize, "chunk", 32000, "Bytes appended per chunk")
	flags.DurationVar(&opts.chunkDelay, "chunk-delay", time.Second, "Pause between chunks")
	flags.StringSliceVar(&opts.speakers, "speakers", nil, "Candidate profile ids (default every enrolled profile)")
	flags.IntVar(&opts.sampleRate, "sample-rate", 16000, "Sample rate of the audio")
	flags.IntVar(&opts.channels, "channels", 1, "Channel count of the audio")
	flags.IntVar(&opts.bitsPerSample, "bits", 16, "Bits per sample of the audio")
	flags.BoolVar(&opts.info, "info", false, "Print the wav header of the file and exit")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func (o *identifyOptions) format() (entities.FormatDescriptor, error) {
	name := o.container
	if name == "" {
		name = strings.TrimPrefix(filepath.Ext(o.file), ".")
	}
	container, err := entities.ParseContainerKind(name)
	if err != nil {
		return entities.FormatDescriptor{}, err
	}
	return entities.NewFormatDescriptor(entities.EncodingPCM, o.channels, o.sampleRate, o.bitsPerSample, container)
}

func runIdentify(ctx context.Context, out io.Writer, service *usecase.IdentificationService, opts *identifyOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.chunkSize <= 0 {
		return errors.New("chunk size must be positive")
	}

	format, err := opts.format()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(opts.file)
	if err != nil {
		return fmt.Errorf("failed to read audio file: %w", err)
	}

	// outcomes arrive from concurrent identification goroutines
	var printMu sync.Mutex
	session, err := service.StartSession(ctx, usecase.StartRequest{
		ClientID:   "cli",
		Format:     format,
		WindowSize: opts.windowSize,
		StepSize:   opts.stepSize,
		Candidates: opts.speakers,
		Sink: recognition.SinkFunc(func(o entities.RecognitionOutcome) {
			printMu.Lock()
			defer printMu.Unlock()
			printOutcome(out, o)
		}),
	})
	if err != nil {
		return err
	}
	defer session.Dispose()

	fmt.Fprintf(out, "Session %s: streaming %d bytes of %s\n", session.ID(), len(data), format)

	for offset := 0; offset < len(data); offset += opts.chunkSize {
		end := min(offset+opts.chunkSize, len(data))
		if err := session.Append(data[offset:end]); err != nil {
			return fmt.Errorf("failed to append audio at offset %d: %w", offset, err)
		}
		if end < len(data) && opts.chunkDelay > 0 {
			select {
			case <-time.After(opts.chunkDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	if err := session.Complete(ctx); err != nil {
		return err
	}

	result := session.Result()
	printMu.Lock()
	defer printMu.Unlock()
	fmt.Fprintf(out, "\n%d outcomes, speaker turns:\n", len(result.Outcomes))
	printTurns(out, result.Turns)
	return nil
}

func printOutcome(out io.Writer, o entities.RecognitionOutcome) {
	if !o.Succeeded {
		fmt.Fprintf(out, "[%3d] failed: %s\n", o.RequestID, o.FailureReason)
		return
	}
	fmt.Fprintf(out, "[%3d] %s (confidence %.1f)\n", o.RequestID, o.SpeakerLabel(), o.Confidence)
}

func printTurns(out io.Writer, turns []entities.SpeakerTurn) {
	for _, t := range turns {
		fmt.Fprintf(out, "  requests %d-%d: %s\n", t.FirstRequestID, t.LastRequestID, t.Identity)
	}
}

// printWavInfo decodes the wav header of path and prints its format
func printWavInfo(out io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open audio file: %w", err)
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return fmt.Errorf("%s is not a valid wav file", path)
	}
	decoder.ReadInfo()
	if err := decoder.Err(); err != nil {
		return fmt.Errorf("failed to read wav header: %w", err)
	}

	format := decoder.Format()
	duration, err := decoder.Duration()
	if err != nil {
		return fmt.Errorf("failed to compute duration: %w", err)
	}

	fmt.Fprintf(out, "file:        %s\n", path)
	fmt.Fprintf(out, "format tag:  %d\n", decoder.WavAudioFormat)
	fmt.Fprintf(out, "channels:    %d\n", format.NumChannels)
	fmt.Fprintf(out, "sample rate: %d\n", format.SampleRate)
	fmt.Fprintf(out, "bit depth:   %d\n", decoder.BitDepth)
	fmt.Fprintf(out, "duration:    %s\n", duration)
	return nil
}
