package planapi

import (
	"bytes"
	"context"
	"net/http"
	"strconv"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/ajitpratap0/planport/pkg/delimited"
	"github.com/ajitpratap0/planport/pkg/errors"
	"github.com/ajitpratap0/planport/pkg/metrics"
	"github.com/ajitpratap0/planport/pkg/pool"
)

// gzipBuffers holds compressed chunk bodies between uploads.
var gzipBuffers = pool.New(
	func() *bytes.Buffer { return new(bytes.Buffer) },
	func(b *bytes.Buffer) { b.Reset() },
)

// OpenUploadWriter configures file with the given dialect and returns a
// writer that uploads rows in chunks. Rows are sent when a chunk fills and
// on Close, which also marks the upload complete.
func (c *Client) OpenUploadWriter(ctx context.Context, model ModelRef, file ServerFile, d delimited.Delimiters) (CellWriter, error) {
	file.Separator = string(d.Separator)
	file.Delimiter = string(d.Quote)
	updated, err := c.updateFileMetadata(ctx, model, file)
	if err != nil {
		return nil, err
	}

	w := &chunkWriter{
		ctx:    ctx,
		client: c,
		model:  model,
		fileID: updated.ID,
		logger: c.logger.With(zap.String("file_id", updated.ID)),
	}
	w.rows = delimited.NewWriter(&w.buf, d)
	return w, nil
}

type chunkWriter struct {
	ctx    context.Context
	client *Client
	model  ModelRef
	fileID string
	logger *zap.Logger

	buf    bytes.Buffer
	rows   *delimited.Writer
	chunks int
	closed bool
}

func (w *chunkWriter) WriteHeaderRow(row []string) error {
	return w.write(row)
}

func (w *chunkWriter) WriteDataRow(row []string) error {
	return w.write(row)
}

func (w *chunkWriter) write(row []string) error {
	if w.closed {
		return errors.New(errors.ErrorTypeFile, "write to closed upload").WithDetail("file_id", w.fileID)
	}
	if err := w.rows.Write(row); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to encode row")
	}
	if err := w.rows.Flush(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to encode row")
	}
	if w.buf.Len() >= w.client.upload.ChunkSize {
		return w.sendChunk()
	}
	return nil
}

// Close sends any buffered rows and completes the upload. Calls after the
// first are no-ops.
func (w *chunkWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if w.buf.Len() > 0 || w.chunks == 0 {
		if err := w.sendChunk(); err != nil {
			return err
		}
	}

	body := map[string]interface{}{"id": w.fileID, "chunkCount": w.chunks}
	path := w.model.path() + "/files/" + w.fileID + "/complete"
	if err := w.client.doJSON(w.ctx, http.MethodPost, path, body, nil); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to complete upload").
			WithDetail("file_id", w.fileID)
	}
	w.logger.Debug("upload complete", zap.Int("chunks", w.chunks))
	return nil
}

func (w *chunkWriter) sendChunk() error {
	payload := w.buf.Bytes()
	contentType := "application/octet-stream"
	encoding := "identity"

	if w.client.upload.Compress {
		zbuf := gzipBuffers.Get()
		defer gzipBuffers.Put(zbuf)
		zw, err := gzip.NewWriterLevel(zbuf, w.client.upload.CompressionLevel)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeFile, "failed to create gzip writer")
		}
		if _, err := zw.Write(payload); err != nil {
			return errors.Wrap(err, errors.ErrorTypeFile, "failed to compress chunk")
		}
		if err := zw.Close(); err != nil {
			return errors.Wrap(err, errors.ErrorTypeFile, "failed to compress chunk")
		}
		payload = zbuf.Bytes()
		contentType = "application/x-gzip"
		encoding = "gzip"
	}

	path := w.model.path() + "/files/" + w.fileID + "/chunks/" + strconv.Itoa(w.chunks)
	resp, err := w.client.send(w.ctx, request{
		method:      http.MethodPut,
		path:        path,
		body:        bytes.NewReader(payload),
		contentType: contentType,
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to upload chunk").
			WithDetail("file_id", w.fileID).
			WithDetail("chunk", w.chunks)
	}
	resp.Body.Close()

	metrics.UploadChunks.Inc()
	metrics.UploadBytes.WithLabelValues(encoding).Add(float64(len(payload)))
	w.chunks++
	w.buf.Reset()
	return nil
}
