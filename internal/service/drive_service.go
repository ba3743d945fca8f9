package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	config "github.com/maheshrc27/autoposter/configs"
)

type driveService struct {
	folderID string
	files    *drive.FilesService
}

// NewDriveService exposes one Drive folder as a BlobStore. Extra options are
// appended after the credentials file option.
func NewDriveService(ctx context.Context, cfg config.Drive, opts ...option.ClientOption) (BlobStore, error) {
	var all []option.ClientOption
	if cfg.CredentialsFile != "" {
		all = append(all, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	all = append(all, option.WithScopes(drive.DriveScope))
	all = append(all, opts...)

	srv, err := drive.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("create drive client: %w", err)
	}
	return &driveService{folderID: cfg.FolderID, files: srv.Files}, nil
}

func (d *driveService) List(ctx context.Context) ([]BlobFile, error) {
	var out []BlobFile
	q := fmt.Sprintf("'%s' in parents and trashed = false", d.folderID)
	err := d.files.List().
		Q(q).
		Fields("nextPageToken, files(id, name, mimeType, size)").
		PageSize(100).
		Pages(ctx, func(page *drive.FileList) error {
			for _, f := range page.Files {
				out = append(out, BlobFile{ID: f.Id, Name: f.Name, MimeType: f.MimeType, Size: f.Size})
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("list drive folder %s: %w", d.folderID, err)
	}
	return out, nil
}

func (d *driveService) Download(ctx context.Context, id string) ([]byte, error) {
	resp, err := d.files.Get(id).Context(ctx).Download()
	if err != nil {
		if isGoogleNotFound(err) {
			return nil, fmt.Errorf("download drive file %s: %w", id, ErrPermanent)
		}
		return nil, fmt.Errorf("download drive file %s: %w", id, err)
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func (d *driveService) Upload(ctx context.Context, name string, data []byte, mimeType string) (string, error) {
	f, err := d.files.Create(&drive.File{Name: name, Parents: []string{d.folderID}, MimeType: mimeType}).
		Media(bytes.NewReader(data)).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("upload drive file %s: %w", name, err)
	}
	return f.Id, nil
}

func (d *driveService) Delete(ctx context.Context, id string) error {
	err := d.files.Delete(id).Context(ctx).Do()
	if err != nil && !isGoogleNotFound(err) {
		return fmt.Errorf("delete drive file %s: %w", id, err)
	}
	return nil
}

func isGoogleNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}
