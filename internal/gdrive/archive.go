package gdrive

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/jspada200/dailies-relay/internal/transcript"
)

// Archiver uploads a daily transcript export to a Drive folder, one Google
// Doc per date, updating the doc in place on later uploads for the same day.
type Archiver struct {
	service  *drive.Service
	folderID string
	fileIDs  map[string]string
	mu       sync.Mutex
}

func NewArchiver(ctx context.Context, credPath, folderID string) (*Archiver, error) {
	creds, err := os.ReadFile(credPath)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	config, err := google.CredentialsFromJSONWithTypeAndParams(ctx, creds, google.ServiceAccount, google.CredentialsParams{Scopes: []string{drive.DriveFileScope}})
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	svc, err := drive.NewService(ctx, option.WithCredentials(config))
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}

	return &Archiver{
		service:  svc,
		folderID: folderID,
		fileIDs:  make(map[string]string),
	}, nil
}

// Archive formats segments into a plain-text transcript and uploads it
// under the given date. Empty days are skipped.
func (a *Archiver) Archive(date string, segments []transcript.Segment) error {
	if len(segments) == 0 {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	var b strings.Builder
	for _, seg := range segments {
		b.WriteString(seg.FormatLine())
		b.WriteString("\n")
	}

	name := fmt.Sprintf("dailies-relay-%s", date)
	body := strings.NewReader(b.String())

	if fileID, ok := a.fileIDs[date]; ok {
		if _, err := a.service.Files.Update(fileID, &drive.File{}).Media(body).Do(); err != nil {
			return fmt.Errorf("drive update: %w", err)
		}
		return nil
	}

	doc, err := a.service.Files.Create(&drive.File{
		Name:     name,
		MimeType: "application/vnd.google-apps.document",
		Parents:  []string{a.folderID},
	}).Media(body).Do()
	if err != nil {
		return fmt.Errorf("drive create: %w", err)
	}

	a.fileIDs[date] = doc.Id
	return nil
}
