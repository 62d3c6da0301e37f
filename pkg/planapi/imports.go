package planapi

import (
	"context"
	"net/http"

	"github.com/ajitpratap0/planport/pkg/errors"
)

// ListImports returns the import actions defined in a model.
func (c *Client) ListImports(ctx context.Context, model ModelRef) ([]Import, error) {
	var resp struct {
		Imports []Import `json:"imports"`
	}
	if err := c.doJSON(ctx, http.MethodGet, model.path()+"/imports", nil, &resp); err != nil {
		return nil, err
	}
	for i := range resp.Imports {
		resp.Imports[i].Model = model
	}
	return resp.Imports, nil
}

// ResolveImport finds an import by id, falling back to a match by name.
// found is false when neither matches.
func (c *Client) ResolveImport(ctx context.Context, model ModelRef, idOrName string) (imp Import, found bool, err error) {
	imports, err := c.ListImports(ctx, model)
	if err != nil {
		return Import{}, false, err
	}
	for _, i := range imports {
		if i.ID == idOrName {
			return i, true, nil
		}
	}
	for _, i := range imports {
		if i.Name == idOrName {
			return i, true, nil
		}
	}
	return Import{}, false, nil
}

// ListFiles returns the server files of a model.
func (c *Client) ListFiles(ctx context.Context, model ModelRef) ([]ServerFile, error) {
	var resp struct {
		Files []ServerFile `json:"files"`
	}
	if err := c.doJSON(ctx, http.MethodGet, model.path()+"/files", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Files, nil
}

// ResolveFile finds a server file by id. found is false when the model has
// no such file.
func (c *Client) ResolveFile(ctx context.Context, model ModelRef, fileID string) (file ServerFile, found bool, err error) {
	if fileID == "" {
		return ServerFile{}, false, nil
	}
	files, err := c.ListFiles(ctx, model)
	if err != nil {
		return ServerFile{}, false, err
	}
	for _, f := range files {
		if f.ID == fileID {
			return f, true, nil
		}
	}
	return ServerFile{}, false, nil
}

// updateFileMetadata sets the dialect of a server file and resets its chunk
// count so a new upload can begin.
func (c *Client) updateFileMetadata(ctx context.Context, model ModelRef, file ServerFile) (ServerFile, error) {
	file.ChunkCount = -1
	var resp struct {
		File *ServerFile `json:"file"`
	}
	if err := c.doJSON(ctx, http.MethodPost, model.path()+"/files/"+file.ID, file, &resp); err != nil {
		return ServerFile{}, errors.Wrap(err, errors.ErrorTypeFile, "failed to update file metadata").
			WithDetail("file_id", file.ID)
	}
	if resp.File == nil {
		return file, nil
	}
	updated := *resp.File
	if updated.ID == "" {
		updated.ID = file.ID
	}
	if updated.Name == "" {
		updated.Name = file.Name
	}
	return updated, nil
}
