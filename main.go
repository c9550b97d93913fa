package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"media-transcriber/internal/bootstrap"
	"media-transcriber/internal/domain"
)

func main() {
	sourcePath := flag.String("source", "", "path to the source audio/video file")
	apiKey := flag.String("api-key", os.Getenv("MEDIA_TRANSCRIBER_API_KEY"), "remote transcription API key")
	useRemote := flag.Bool("remote", true, "attempt remote transcription before falling back locally")
	configDir := flag.String("config-dir", defaultConfigDir(), "application configuration directory")
	exportPath := flag.String("export", "", "path to write the finished transcript (.txt or .docx); defaults next to the source file")
	flag.Parse()

	if *sourcePath == "" {
		log.Fatalf("-source is required")
	}

	app, err := bootstrap.New(*configDir)
	if err != nil {
		log.Fatalf("bootstrap app: %v", err)
	}

	jobID, err := app.StartTranscription(*sourcePath, *apiKey, *useRemote)
	if err != nil {
		log.Fatalf("start transcription: %v", err)
	}

	job, err := awaitTerminal(app, jobID)
	if err != nil {
		log.Fatalf("await job: %v", err)
	}
	if job.Status != domain.JobStatusReady {
		log.Fatalf("job %s finished with status %s: %s", jobID, job.Status, job.ErrorMessage)
	}

	dest := *exportPath
	if dest == "" {
		dest = defaultExportPath(*sourcePath)
	}
	format := bootstrap.ExportFormatTXT
	if filepath.Ext(dest) == ".docx" {
		format = bootstrap.ExportFormatDOCX
	}
	if err := app.ExportJob(jobID, format, dest); err != nil {
		log.Fatalf("export transcript: %v", err)
	}

	fmt.Printf("transcript written to %s\n", dest)
}

// awaitTerminal polls the store until the job reaches ready or failed,
// printing progress events as they arrive.
func awaitTerminal(app *bootstrap.App, jobID string) (domain.Job, error) {
	var lastSeq int64
	for {
		for _, event := range app.Coordinator.ProgressStream().Since(lastSeq) {
			if event.JobID != jobID {
				continue
			}
			lastSeq = event.Seq
			fmt.Printf("[%s] %s %d%% (%d/%d chunks) %s\n", event.Stage, event.Status, event.Percent, event.ChunksDone, event.ChunksTotal, event.Message)
		}

		job, err := app.Store.GetJob(jobID)
		if err != nil {
			return domain.Job{}, err
		}
		if job.Status.Terminal() {
			return job, nil
		}
		time.Sleep(200 * time.Millisecond)
	}
}

func defaultConfigDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return filepath.Join(dir, "media-transcriber")
}

func defaultExportPath(sourcePath string) string {
	base := filepath.Base(sourcePath)
	ext := filepath.Ext(base)
	name := base[:len(base)-len(ext)]
	return filepath.Join(filepath.Dir(sourcePath), name+".txt")
}
