// Copyright 2026 The WebWX Authors
// SPDX-License-Identifier: Apache-2.0

package wechat

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/webwx-foundation/webwx/lib/netutil"
)

// uploadChunkSize is the fixed chunk length for media uploads. The
// gateway rejects larger parts.
const uploadChunkSize = 512 * 1024

// mediaCategory maps a file name to the gateway's upload category.
func mediaCategory(fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	mimeType := mime.TypeByExtension(ext)
	switch {
	case strings.HasPrefix(mimeType, "image/") && ext != ".gif":
		return "pic"
	case strings.HasPrefix(mimeType, "video/"):
		return "video"
	default:
		return "doc"
	}
}

// uploadMediaRequest is the JSON part accompanying every chunk.
type uploadMediaRequest struct {
	UploadType    int          `json:"UploadType"`
	BaseRequest   *Credentials `json:"BaseRequest"`
	ClientMediaID int64        `json:"ClientMediaId"`
	TotalLen      int          `json:"TotalLen"`
	StartPos      int          `json:"StartPos"`
	DataLen       int          `json:"DataLen"`
	MediaType     int          `json:"MediaType"`
	FromUserName  string       `json:"FromUserName"`
	ToUserName    string       `json:"ToUserName"`
	FileMd5       string       `json:"FileMd5"`
}

// Upload transfers a local file to the gateway's media store in fixed
// chunks and returns the media id to pass to SendImage, SendVideo or
// SendApp. to names the eventual recipient; the gateway scopes the
// media id to that conversation.
func (s *Session) Upload(ctx context.Context, path, to string) (string, error) {
	credentials, err := s.baseRequest()
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("wechat: failed to read upload file: %w", err)
	}

	fileName := filepath.Base(path)
	digest := md5.Sum(data)
	request := uploadMediaRequest{
		UploadType:    2,
		BaseRequest:   credentials,
		ClientMediaID: s.client.clock.Now().UnixNano(),
		TotalLen:      len(data),
		DataLen:       len(data),
		MediaType:     mediaTypeAttachment,
		FromUserName:  s.selfName(),
		ToUserName:    to,
		FileMd5:       hex.EncodeToString(digest[:]),
	}

	chunkCount := (len(data) + uploadChunkSize - 1) / uploadChunkSize
	if chunkCount == 0 {
		chunkCount = 1
	}

	var mediaID string
	for chunk := 0; chunk < chunkCount; chunk++ {
		start := chunk * uploadChunkSize
		end := min(start+uploadChunkSize, len(data))
		mediaID, err = s.uploadChunk(ctx, fileName, request, chunk, chunkCount, data[start:end])
		if err != nil {
			return "", fmt.Errorf("wechat: upload chunk %d/%d failed: %w", chunk+1, chunkCount, err)
		}
	}
	if mediaID == "" {
		return "", &ProtocolError{Marker: "MediaId"}
	}
	return mediaID, nil
}

// uploadChunk posts one multipart chunk. Only the final chunk's
// response carries the media id.
func (s *Session) uploadChunk(ctx context.Context, fileName string, request uploadMediaRequest, chunk, chunkCount int, data []byte) (string, error) {
	encodedRequest, err := json.Marshal(request)
	if err != nil {
		return "", err
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	fields := map[string]string{
		"id":                 "WU_FILE_0",
		"name":               fileName,
		"type":               mime.TypeByExtension(filepath.Ext(fileName)),
		"size":               strconv.Itoa(request.TotalLen),
		"mediatype":          mediaCategory(fileName),
		"uploadmediarequest": string(encodedRequest),
	}
	fields["chunks"] = strconv.Itoa(chunkCount)
	fields["chunk"] = strconv.Itoa(chunk)
	for name, value := range fields {
		if err := form.WriteField(name, value); err != nil {
			return "", err
		}
	}
	part, err := form.CreateFormFile("filename", fileName)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := form.Close(); err != nil {
		return "", err
	}

	uploadURL := s.client.fileURL + "/cgi-bin/mmwebwx-bin/webwxuploadmedia?f=json"
	httpRequest, err := s.client.newRequest(ctx, http.MethodPost, uploadURL, &body)
	if err != nil {
		return "", err
	}
	httpRequest.Header.Set("Content-Type", form.FormDataContentType())

	response, err := s.client.httpClient.Do(httpRequest)
	if err != nil {
		return "", err
	}
	defer response.Body.Close()
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return "", fmt.Errorf("unexpected %d response", response.StatusCode)
	}

	var result struct {
		MediaID string `json:"MediaId"`
	}
	responseBody, err := netutil.ReadResponse(response.Body)
	if err != nil {
		return "", err
	}
	if err := decodeChecked(responseBody, &result); err != nil {
		return "", err
	}
	return result.MediaID, nil
}
