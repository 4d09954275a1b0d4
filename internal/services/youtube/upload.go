package youtube

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"strings"

	"songforge/internal/services"
)

const uploadStage = "uploading"

// UploadRequest describes one video upload.
type UploadRequest struct {
	VideoPath     string
	Title         string
	Description   string
	Tags          []string
	CategoryID    string
	PrivacyStatus string
}

type uploadSnippet struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
	CategoryID  string   `json:"categoryId"`
}

type uploadStatus struct {
	PrivacyStatus           string `json:"privacyStatus"`
	SelfDeclaredMadeForKids bool   `json:"selfDeclaredMadeForKids"`
}

type uploadMetadata struct {
	Snippet uploadSnippet `json:"snippet"`
	Status  uploadStatus  `json:"status"`
}

type uploadResponse struct {
	ID    string    `json:"id"`
	Error *apiError `json:"error"`
}

// Upload sends a rendered video through videos.insert and returns the new
// video's ID. The request uses a multipart body carrying the JSON metadata
// part followed by the media bytes.
func (c *Client) Upload(ctx context.Context, req UploadRequest) (string, error) {
	if c.accessToken == "" {
		return "", services.Wrap(services.ErrConfiguration, uploadStage, "upload", "oauth access token is not configured", nil)
	}
	file, err := os.Open(req.VideoPath)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, uploadStage, "upload", "open video file", err)
	}
	defer file.Close()

	metadata := uploadMetadata{
		Snippet: uploadSnippet{
			Title:       truncate(req.Title, 100),
			Description: truncate(req.Description, 5000),
			Tags:        req.Tags,
			CategoryID:  defaultString(req.CategoryID, CategoryMusic),
		},
		Status: uploadStatus{
			PrivacyStatus:           defaultString(req.PrivacyStatus, "private"),
			SelfDeclaredMadeForKids: false,
		},
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	metaHeader := textproto.MIMEHeader{}
	metaHeader.Set("Content-Type", "application/json; charset=UTF-8")
	metaPart, err := writer.CreatePart(metaHeader)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, uploadStage, "upload", "build metadata part", err)
	}
	if err := json.NewEncoder(metaPart).Encode(metadata); err != nil {
		return "", services.Wrap(services.ErrValidation, uploadStage, "upload", "encode metadata", err)
	}

	mediaHeader := textproto.MIMEHeader{}
	mediaHeader.Set("Content-Type", "video/mp4")
	mediaPart, err := writer.CreatePart(mediaHeader)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, uploadStage, "upload", "build media part", err)
	}
	if _, err := io.Copy(mediaPart, file); err != nil {
		return "", services.Wrap(services.ErrValidation, uploadStage, "upload", "read video file", err)
	}
	if err := writer.Close(); err != nil {
		return "", services.Wrap(services.ErrValidation, uploadStage, "upload", "finish multipart body", err)
	}

	endpoint := c.uploadURL + "/videos?uploadType=multipart&part=snippet,status"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, uploadStage, "upload", "build request", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.accessToken)
	httpReq.Header.Set("Content-Type", "multipart/related; boundary="+writer.Boundary())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, uploadStage, "upload", "upload request failed", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, uploadStage, "upload", "read upload response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", classifyStatus(uploadStage, "upload", resp.StatusCode, respBody)
	}

	var payload uploadResponse
	if err := json.Unmarshal(respBody, &payload); err != nil {
		return "", services.Wrap(services.ErrTransient, uploadStage, "upload", "decode upload response", err)
	}
	if payload.Error != nil {
		return "", services.Wrap(services.ErrTransient, uploadStage, "upload", "youtube api error: "+payload.Error.Message, nil)
	}
	if strings.TrimSpace(payload.ID) == "" {
		return "", services.Wrap(services.ErrExternalTool, uploadStage, "upload", "upload response missing video id", nil)
	}
	return payload.ID, nil
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit]
}

func defaultString(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
