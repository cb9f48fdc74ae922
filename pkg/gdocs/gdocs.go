package gdocs

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"google.golang.org/api/docs/v1"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

const pdfMimeType = "application/pdf"

// HTTPClientSource hands out an authorized client for the mailbox owner.
// The Gmail service implements it, so documents share its token file.
type HTTPClientSource interface {
	HTTPClient(ctx context.Context) (*http.Client, error)
}

// Client manages the editable resume documents
type Client struct {
	source  HTTPClientSource
	timeout time.Duration
	opts    []option.ClientOption
	log     *zap.SugaredLogger
}

// NewClient creates a documents client. opts are passed to both the Docs and
// the Drive service.
func NewClient(source HTTPClientSource, timeout time.Duration, log *zap.SugaredLogger, opts ...option.ClientOption) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{source: source, timeout: timeout, opts: opts, log: log.Named("gdocs")}
}

func (c *Client) services(ctx context.Context) (*docs.Service, *drive.Service, error) {
	hc, err := c.source.HTTPClient(ctx)
	if err != nil {
		return nil, nil, err
	}
	opts := append([]option.ClientOption{option.WithHTTPClient(hc)}, c.opts...)
	docSrv, err := docs.NewService(ctx, opts...)
	if err != nil {
		return nil, nil, errors.Wrap(err, "unable to create Docs service")
	}
	driveSrv, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, nil, errors.Wrap(err, "unable to create Drive service")
	}
	return docSrv, driveSrv, nil
}

// CreateDoc creates "Resume - <ownerKey>" holding text and returns its id
func (c *Client) CreateDoc(ctx context.Context, ownerKey, text string) (string, error) {
	docSrv, _, err := c.services(ctx)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	doc, err := docSrv.Documents.Create(&docs.Document{Title: "Resume - " + ownerKey}).Context(ctx).Do()
	if err != nil {
		return "", errors.Wrap(err, "unable to create document")
	}

	_, err = docSrv.Documents.BatchUpdate(doc.DocumentId, &docs.BatchUpdateDocumentRequest{
		Requests: []*docs.Request{{
			InsertText: &docs.InsertTextRequest{
				Location: &docs.Location{Index: 1},
				Text:     text,
			},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return "", errors.Wrapf(err, "unable to fill document %s", doc.DocumentId)
	}

	c.log.Infow("Resume document created", "doc_id", doc.DocumentId, "owner", ownerKey)
	return doc.DocumentId, nil
}

// ShareEditable lets anyone with the link edit the document
func (c *Client) ShareEditable(ctx context.Context, docID string) error {
	_, driveSrv, err := c.services(ctx)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	_, err = driveSrv.Permissions.Create(docID, &drive.Permission{
		Type: "anyone",
		Role: "writer",
	}).Context(ctx).Do()
	return errors.Wrapf(err, "unable to share document %s", docID)
}

// ExportPDF downloads the current document content as PDF into path. The file
// only appears once the download is complete.
func (c *Client) ExportPDF(ctx context.Context, docID, path string) error {
	_, driveSrv, err := c.services(ctx)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := driveSrv.Files.Export(docID, pdfMimeType).Context(ctx).Download()
	if err != nil {
		return errors.Wrapf(err, "unable to export document %s", docID)
	}
	defer resp.Body.Close()

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "create export file")
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return errors.Wrapf(err, "download document %s", docID)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return errors.Wrap(err, "close export file")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return errors.Wrap(err, "move export file")
	}
	c.log.Infow("Resume exported", "doc_id", docID, "path", path)
	return nil
}

func (c *Client) EditURL(docID string) string {
	return "https://docs.google.com/document/d/" + docID + "/edit"
}
