package media

import (
	"errors"
	"strings"
	"time"
)

// VideoProcessingStatus mirrors the remote API's processing states for video items.
type VideoProcessingStatus string

const (
	VideoStatusUnspecified VideoProcessingStatus = "UNSPECIFIED"
	VideoStatusProcessing  VideoProcessingStatus = "PROCESSING"
	VideoStatusReady       VideoProcessingStatus = "READY"
	VideoStatusFailed      VideoProcessingStatus = "FAILED"
)

// PhotoMetadata carries the photo arm of the metadata union.
type PhotoMetadata struct {
	CameraMake      string  `json:"cameraMake,omitempty"`
	CameraModel     string  `json:"cameraModel,omitempty"`
	FocalLength     float64 `json:"focalLength,omitempty"`
	ApertureFNumber float64 `json:"apertureFNumber,omitempty"`
	ISOEquivalent   int64   `json:"isoEquivalent,omitempty"`
	ExposureTime    string  `json:"exposureTime,omitempty"`
}

// VideoMetadata carries the video arm of the metadata union.
type VideoMetadata struct {
	CameraMake  string                `json:"cameraMake,omitempty"`
	CameraModel string                `json:"cameraModel,omitempty"`
	FPS         float64               `json:"fps,omitempty"`
	Status      VideoProcessingStatus `json:"status,omitempty"`
}

// Metadata is the type-tagged metadata payload of a media item. Exactly one
// of Photo or Video is set; Validate enforces the invariant so a malformed
// payload is rejected rather than silently dropped.
type Metadata struct {
	CreationTime string         `json:"creationTime,omitempty"`
	Width        string         `json:"width,omitempty"`
	Height       string         `json:"height,omitempty"`
	Photo        *PhotoMetadata `json:"photo,omitempty"`
	Video        *VideoMetadata `json:"video,omitempty"`
}

// ErrAmbiguousMetadata is returned when a metadata payload does not carry
// exactly one of the photo/video arms.
var ErrAmbiguousMetadata = errors.New("media metadata must carry exactly one of photo or video")

// Validate checks the discriminated-union invariant.
func (m *Metadata) Validate() error {
	if m == nil {
		return nil
	}
	if (m.Photo == nil) == (m.Video == nil) {
		return ErrAmbiguousMetadata
	}
	return nil
}

// IsVideo reports whether the metadata describes a video item.
func (m *Metadata) IsVideo() bool {
	return m != nil && m.Video != nil
}

// ContributorInfo identifies the sharing contributor for items from shared
// libraries or albums.
type ContributorInfo struct {
	DisplayName           string `json:"displayName"`
	ProfilePictureBaseURL string `json:"profilePictureBaseUrl"`
}

// Item is one remote asset as described by the library API. BaseURL is the
// short-lived signed asset URL; ProductURL is the long-lived reference.
type Item struct {
	ID              string           `json:"id"`
	Description     string           `json:"description,omitempty"`
	ProductURL      string           `json:"productUrl"`
	BaseURL         string           `json:"baseUrl"`
	MimeType        string           `json:"mimeType,omitempty"`
	Filename        string           `json:"filename"`
	Metadata        *Metadata        `json:"mediaMetadata,omitempty"`
	Contributor     *ContributorInfo `json:"contributorInfo,omitempty"`
	BaseURLObtained time.Time        `json:"-"`
}

// Validate rejects descriptors the engine cannot act on.
func (i *Item) Validate() error {
	if i == nil {
		return errors.New("media item is nil")
	}
	if strings.TrimSpace(i.ID) == "" {
		return errors.New("media item id is empty")
	}
	if strings.TrimSpace(i.Filename) == "" {
		return errors.New("media item filename is empty")
	}
	return i.Metadata.Validate()
}

// IsVideo reports whether the asset should be fetched with the video download
// parameter.
func (i *Item) IsVideo() bool {
	if strings.Contains(strings.ToLower(i.MimeType), "video") {
		return true
	}
	return i.Metadata.IsVideo()
}
