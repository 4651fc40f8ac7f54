package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// DriveClient exports result artifacts to Google Drive. Export is an
// API-triggered operation; the pipeline itself never touches Drive.
type DriveClient struct {
	service    *drive.Service
	folderName string
	folderID   string
}

// NewDriveClient creates a new Google Drive client from an OAuth credentials
// file and a previously saved token. Run the auth flow once out of band to
// produce the token file; the server itself never prompts.
func NewDriveClient(credentialsFile, tokenFile, folderName string) (*DriveClient, error) {
	ctx := context.Background()

	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %v", err)
	}

	config, err := google.ConfigFromJSON(b, drive.DriveFileScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %v", err)
	}

	client, err := clientFromToken(config, tokenFile)
	if err != nil {
		return nil, err
	}

	srv, err := drive.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create Drive service: %v", err)
	}

	dc := &DriveClient{
		service:    srv,
		folderName: folderName,
	}

	if err := dc.ensureFolder(); err != nil {
		return nil, err
	}

	return dc, nil
}

// clientFromToken builds an HTTP client from a saved OAuth token
func clientFromToken(config *oauth2.Config, tokenFile string) (*http.Client, error) {
	f, err := os.Open(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("drive token not found (run the auth flow first): %v", err)
	}
	defer f.Close()

	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("failed to decode drive token: %v", err)
	}
	return config.Client(context.Background(), tok), nil
}

// ensureFolder finds or creates the root export folder
func (dc *DriveClient) ensureFolder() error {
	query := fmt.Sprintf("name='%s' and mimeType='application/vnd.google-apps.folder' and trashed=false",
		dc.folderName)

	r, err := dc.service.Files.List().Q(query).Spaces("drive").Fields("files(id, name)").Do()
	if err != nil {
		return fmt.Errorf("unable to search for folder: %v", err)
	}

	if len(r.Files) > 0 {
		dc.folderID = r.Files[0].Id
		return nil
	}

	folder := &drive.File{
		Name:     dc.folderName,
		MimeType: "application/vnd.google-apps.folder",
	}

	file, err := dc.service.Files.Create(folder).Fields("id").Do()
	if err != nil {
		return fmt.Errorf("unable to create folder: %v", err)
	}

	dc.folderID = file.Id
	return nil
}

// ExportResult uploads a job's result artifact and returns a shareable link
func (dc *DriveClient) ExportResult(jobID, artifactPath string) (string, error) {
	folderID, err := dc.ensureDateFolder(time.Now())
	if err != nil {
		return "", err
	}

	f, err := os.Open(artifactPath)
	if err != nil {
		return "", fmt.Errorf("failed to open result artifact: %v", err)
	}
	defer f.Close()

	driveFile := &drive.File{
		Name:    filepath.Base(artifactPath),
		Parents: []string{folderID},
	}

	created, err := dc.service.Files.Create(driveFile).Media(f).Fields("id").Do()
	if err != nil {
		return "", fmt.Errorf("failed to upload result for job %s: %v", jobID, err)
	}

	return fmt.Sprintf("https://drive.google.com/file/d/%s/view", created.Id), nil
}

// ensureDateFolder creates nested year/month/day folders
func (dc *DriveClient) ensureDateFolder(t time.Time) (string, error) {
	yearID, err := dc.findOrCreateFolder(fmt.Sprintf("%d", t.Year()), dc.folderID)
	if err != nil {
		return "", err
	}

	monthID, err := dc.findOrCreateFolder(fmt.Sprintf("%02d", t.Month()), yearID)
	if err != nil {
		return "", err
	}

	return dc.findOrCreateFolder(fmt.Sprintf("%02d", t.Day()), monthID)
}

// findOrCreateFolder finds or creates a folder with the given parent
func (dc *DriveClient) findOrCreateFolder(name, parentID string) (string, error) {
	query := fmt.Sprintf("name='%s' and '%s' in parents and mimeType='application/vnd.google-apps.folder' and trashed=false",
		name, parentID)

	r, err := dc.service.Files.List().Q(query).Spaces("drive").Fields("files(id)").Do()
	if err != nil {
		return "", err
	}

	if len(r.Files) > 0 {
		return r.Files[0].Id, nil
	}

	folder := &drive.File{
		Name:     name,
		MimeType: "application/vnd.google-apps.folder",
		Parents:  []string{parentID},
	}

	file, err := dc.service.Files.Create(folder).Fields("id").Do()
	if err != nil {
		return "", err
	}

	return file.Id, nil
}
