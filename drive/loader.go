// Package drive loads documents from a Google Drive folder tree through
// the Drive v3 API. It is a thin collaborator: authentication, folder
// enumeration, and byte downloads live here; hierarchy semantics live in
// the hierarchy package.
package drive

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"golang.org/x/oauth2/google"
	driveapi "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/mlefebvre/ragtree/document"
	"github.com/mlefebvre/ragtree/hierarchy"
)

const (
	mimeTypeFolder    = "application/vnd.google-apps.folder"
	mimeTypeGoogleDoc = "application/vnd.google-apps.document"

	exportMimeText = "text/plain"

	listPageSize = 1000
)

// supportedMimeTypes are the file types the loader downloads; everything
// else is listed out by the Drive query itself.
var supportedMimeTypes = []string{
	"text/plain",
	"application/pdf",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	mimeTypeGoogleDoc,
}

type Loader struct {
	svc    *driveapi.Service
	logger *log.Logger
}

// NewLoader authenticates with a service-account credentials file and
// returns a read-only Drive client.
func NewLoader(ctx context.Context, credentialsPath string, logger *log.Logger) (*Loader, error) {
	if logger == nil {
		logger = log.Default()
	}
	if credentialsPath == "" {
		return nil, fmt.Errorf("google credentials path is not set")
	}

	data, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}

	jwtConfig, err := google.JWTConfigFromJSON(data, driveapi.DriveReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("parse service account credentials: %w", err)
	}

	svc, err := driveapi.NewService(ctx, option.WithTokenSource(jwtConfig.TokenSource(ctx)))
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}

	return &Loader{svc: svc, logger: logger}, nil
}

// ListFolders enumerates every subfolder beneath rootID breadth first and
// returns them as flat folder records for the hierarchy resolver.
// Per-folder listing errors are logged and that subtree is skipped.
func (l *Loader) ListFolders(ctx context.Context, rootID string) ([]hierarchy.Folder, error) {
	if l.svc == nil {
		return nil, fmt.Errorf("drive service is not initialized")
	}

	folders := make([]hierarchy.Folder, 0)
	queue := []string{rootID}
	seen := map[string]bool{}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if seen[current] {
			continue
		}
		seen[current] = true

		query := fmt.Sprintf("'%s' in parents and mimeType='%s' and trashed=false", current, mimeTypeFolder)
		pageToken := ""
		for {
			call := l.svc.Files.List().
				Q(query).
				Fields("nextPageToken, files(id, name, parents)").
				PageSize(listPageSize).
				Context(ctx)
			if pageToken != "" {
				call = call.PageToken(pageToken)
			}

			resp, err := call.Do()
			if err != nil {
				l.logger.Printf("error listing subfolders of %s: %v", current, err)
				break
			}

			for _, file := range resp.Files {
				folders = append(folders, hierarchy.Folder{
					ID:      file.Id,
					Name:    file.Name,
					Parents: file.Parents,
				})
				queue = append(queue, file.Id)
			}

			pageToken = resp.NextPageToken
			if pageToken == "" {
				break
			}
		}
	}

	return folders, nil
}

// LoadDocuments downloads every supported file in the folder tree rooted
// at rootID and stamps each with its resolved hierarchy metadata.
// maxDocuments <= 0 means unlimited.
func (l *Loader) LoadDocuments(ctx context.Context, rootID string, maxDocuments int) ([]document.Document, error) {
	folders, err := l.ListFolders(ctx, rootID)
	if err != nil {
		return nil, err
	}
	folderMap := hierarchy.ResolveFolderPaths(folders, rootID)

	folderIDs := make([]string, 0, len(folders)+1)
	folderIDs = append(folderIDs, rootID)
	for _, folder := range folders {
		folderIDs = append(folderIDs, folder.ID)
	}

	l.logger.Printf("processing %d drive folders under %s", len(folderIDs), rootID)

	documents := make([]document.Document, 0)
	for _, folderID := range folderIDs {
		files, err := l.listFiles(ctx, folderID)
		if err != nil {
			l.logger.Printf("error listing files in folder %s: %v", folderID, err)
			continue
		}

		for _, file := range files {
			data, err := l.download(ctx, file)
			if err != nil {
				l.logger.Printf("failed to download %s: %v", file.Name, err)
				continue
			}

			meta := hierarchy.FolderMetadata([]string{folderID}, folderMap)
			meta.Source = "google_drive"
			meta.FileName = file.Name
			meta.FolderID = folderID
			meta.Extra = map[string]string{
				"drive_file_id": file.Id,
				"mime_type":     file.MimeType,
			}

			documents = append(documents, document.Document{
				Content: string(data),
				Meta:    meta,
			})

			if maxDocuments > 0 && len(documents) >= maxDocuments {
				return documents, nil
			}
		}
	}

	l.logger.Printf("loaded %d documents from google drive", len(documents))
	return documents, nil
}

func (l *Loader) listFiles(ctx context.Context, folderID string) ([]*driveapi.File, error) {
	mimeQuery := ""
	for i, mime := range supportedMimeTypes {
		if i > 0 {
			mimeQuery += " or "
		}
		mimeQuery += fmt.Sprintf("mimeType='%s'", mime)
	}
	query := fmt.Sprintf("trashed=false and '%s' in parents and (%s)", folderID, mimeQuery)

	files := make([]*driveapi.File, 0)
	pageToken := ""
	for {
		call := l.svc.Files.List().
			Q(query).
			Fields("nextPageToken, files(id, name, mimeType, modifiedTime)").
			PageSize(listPageSize).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("list files: %w", err)
		}
		files = append(files, resp.Files...)

		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
	}

	return files, nil
}

// download fetches file bytes, exporting Google Docs as plain text and
// downloading everything else as-is.
func (l *Loader) download(ctx context.Context, file *driveapi.File) ([]byte, error) {
	if file.MimeType == mimeTypeGoogleDoc {
		res, err := l.svc.Files.Export(file.Id, exportMimeText).Context(ctx).Download()
		if err != nil {
			return nil, fmt.Errorf("export google doc %s: %w", file.Id, err)
		}
		defer res.Body.Close()
		return io.ReadAll(res.Body)
	}

	res, err := l.svc.Files.Get(file.Id).Context(ctx).Download()
	if err != nil {
		return nil, fmt.Errorf("download file %s: %w", file.Id, err)
	}
	defer res.Body.Close()
	return io.ReadAll(res.Body)
}
