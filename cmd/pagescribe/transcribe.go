package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/nikhilbhutani/pagescribe/internal/config"
	"github.com/nikhilbhutani/pagescribe/internal/llm"
	"github.com/nikhilbhutani/pagescribe/internal/transcription"
)

var (
	trPages     string
	trAll       bool
	trProvider  string
	trTranslate bool
	trAPIKey    string
	trName      string
	trOutDir    string
)

var transcribeCmd = &cobra.Command{
	Use:   "transcribe FILE.pdf",
	Short: "Transcribe the selected pages and write FILE.txt and FILE.json",
	Args:  cobra.ExactArgs(1),
	RunE:  runTranscribe,
}

func init() {
	f := transcribeCmd.Flags()
	f.StringVarP(&trPages, "pages", "p", "", `page selection, e.g. "1-3, 7"`)
	f.BoolVar(&trAll, "all", false, "transcribe every page")
	f.StringVar(&trProvider, "provider", "", "gemini, openai or anthropic (default from LLM_DEFAULT_PROVIDER)")
	f.BoolVar(&trTranslate, "translate", false, "translate into the settings' target language")
	f.StringVar(&trAPIKey, "api-key", "", "provider API key (overrides OPENAI_API_KEY / ANTHROPIC_API_KEY)")
	f.StringVar(&trName, "name", "", "display name stored with the record")
	f.StringVarP(&trOutDir, "out", "o", "", "output directory (default: next to the PDF)")
}

func runTranscribe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	settings, err := loadSettings()
	if err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	gateway := llm.NewGateway(ctx, cfg.LLM)
	defer gateway.Close()

	provider := gateway.Default()
	if trProvider != "" {
		if provider, err = llm.ParseProvider(trProvider); err != nil {
			return err
		}
	}

	job := transcription.NewJob(uuid.Nil, provider)
	defer job.Close()
	err = job.Load(ctx, transcription.PDFLoader, transcription.File{
		Name:        filepath.Base(args[0]),
		DisplayName: trName,
		Data:        data,
	}, settings.Render.PreviewScale, 0)
	if err != nil {
		return err
	}
	if err := job.Update(transcription.Patch{Pages: &trPages, All: &trAll, Translate: &trTranslate}); err != nil {
		return err
	}

	selected := job.Selected()
	out := cmd.OutOrStdout()
	printSelection(out, selected, provider)

	dir := trOutDir
	if dir == "" {
		dir = filepath.Dir(args[0])
	}
	recorder := newFileRecorder(dir, args[0])
	driver := transcription.NewDriver(gateway, recorder, settings)

	bar := progressbar.NewOptions(len(selected),
		progressbar.OptionSetDescription("transcribing"),
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionShowCount(),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(cmd.ErrOrStderr()) }),
	)
	result, err := driver.Run(ctx, job, transcription.RunOptions{APIKey: trAPIKey}, func(p transcription.Progress) {
		_ = bar.Set(p.Done)
	})
	if err != nil {
		return err
	}
	_ = bar.Finish()

	rec := result.Record
	if rec.Failed() {
		fmt.Fprintf(out, "failed:      %s\n", *rec.Error)
		fmt.Fprintf(out, "record:      %s\n", recorder.metaPath)
		return fmt.Errorf("transcription failed")
	}
	fmt.Fprintf(out, "text:        %s\n", recorder.textPath)
	fmt.Fprintf(out, "record:      %s\n", recorder.metaPath)
	return nil
}
