package domain

import (
	"time"

	"github.com/google/uuid"
)

// ObjectKind enumerates the fixed set of spatial object kinds.
type ObjectKind string

const (
	ObjectText        ObjectKind = "text"
	ObjectImage       ObjectKind = "image"
	ObjectModel       ObjectKind = "model"
	ObjectVideo       ObjectKind = "video"
	ObjectInteractive ObjectKind = "interactive"
)

// InteractionType enumerates user action channels against spatial objects.
type InteractionType string

const (
	InteractSelect  InteractionType = "select"
	InteractHover   InteractionType = "hover"
	InteractGesture InteractionType = "gesture"
	InteractVoice   InteractionType = "voice"
)

// Vec3 is a position, rotation (euler degrees) or scale triple.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Transform places an object in the scene.
type Transform struct {
	Position Vec3 `json:"position"`
	Rotation Vec3 `json:"rotation"`
	Scale    Vec3 `json:"scale"`
}

// ObjectContent is the kind-specific payload of a spatial object. Exactly one
// concrete type exists per ObjectKind, so dispatch can switch exhaustively.
type ObjectContent interface {
	Kind() ObjectKind
}

// TextContent is a floating text panel.
type TextContent struct {
	Body     string  `json:"body"`
	FontSize float64 `json:"font_size"`
}

func (TextContent) Kind() ObjectKind { return ObjectText }

// ImageContent references a 2D image billboard.
type ImageContent struct {
	URL    string  `json:"url"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (ImageContent) Kind() ObjectKind { return ObjectImage }

// ModelContent references a 3D asset.
type ModelContent struct {
	URL      string `json:"url"`
	Animated bool   `json:"animated"`
}

func (ModelContent) Kind() ObjectKind { return ObjectModel }

// VideoContent references a video surface.
type VideoContent struct {
	URL  string `json:"url"`
	Loop bool   `json:"loop"`
}

func (VideoContent) Kind() ObjectKind { return ObjectVideo }

// InteractiveContent binds an object to a named action handled by product
// code (e.g. "start-breathing-exercise"). Params are passed through verbatim.
type InteractiveContent struct {
	Action string            `json:"action"`
	Params map[string]string `json:"params,omitempty"`
}

func (InteractiveContent) Kind() ObjectKind { return ObjectInteractive }

// SpatialObject is one placed entity in a layer.
type SpatialObject struct {
	ID           string          `json:"id"`
	Kind         ObjectKind      `json:"kind"`
	Transform    Transform       `json:"transform"`
	Content      ObjectContent   `json:"content"`
	Category     string          `json:"category"`
	Interaction  InteractionType `json:"interaction"`
	Visible      bool            `json:"visible"`
	Interactable bool            `json:"interactable"`
	CreatedAt    time.Time       `json:"created_at"`
}

// ObjectSpec describes a spatial object to create.
type ObjectSpec struct {
	Kind         ObjectKind
	Transform    Transform
	Content      ObjectContent
	Category     string
	Interaction  InteractionType
	Visible      bool
	Interactable bool
}

// ObjectUpdate is a partial update. Nil fields are left untouched; set fields
// overwrite wholesale (last write wins, no deep merge).
type ObjectUpdate struct {
	Transform    *Transform
	Content      ObjectContent
	Visible      *bool
	Interactable *bool
	Category     *string
}

// BlendMode is carried as metadata for the presentation layer to interpret.
type BlendMode string

const (
	BlendNormal   BlendMode = "normal"
	BlendAdditive BlendMode = "additive"
	BlendMultiply BlendMode = "multiply"
)

// Layer is a named, independently toggleable group of spatial objects.
type Layer struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Objects   []*SpatialObject `json:"objects"`
	Active    bool             `json:"active"`
	BlendMode BlendMode        `json:"blend_mode"`
	Opacity   float64          `json:"opacity"`
}

// GazeSample is an eye tracking update.
type GazeSample struct {
	Origin    Vec3 `json:"origin"`
	Direction Vec3 `json:"direction"`
}

// HandPose is a single hand tracking update.
type HandPose struct {
	Position Vec3    `json:"position"`
	Pinch    float64 `json:"pinch"`
}

// TrackingData holds the latest head/eye/hand samples for a scene session.
// Ingestion merges field-by-field: a nil field in an update leaves the stored
// sample untouched.
type TrackingData struct {
	Head      *Pose       `json:"head,omitempty"`
	Gaze      *GazeSample `json:"gaze,omitempty"`
	LeftHand  *HandPose   `json:"left_hand,omitempty"`
	RightHand *HandPose   `json:"right_hand,omitempty"`
	UpdatedAt time.Time   `json:"updated_at,omitzero"`
}

// InteractionEvent is an immutable record of a user action against an object.
type InteractionEvent struct {
	ID        string            `json:"id"`
	ObjectID  string            `json:"object_id"`
	Type      InteractionType   `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Payload   map[string]string `json:"payload,omitempty"`
}

// SceneSettings tunes per-session scene behavior.
type SceneSettings struct {
	MaxHistory int `json:"max_history"`
}

// SceneSession is the AR-layer state bound to one Session and one
// PresentationSession.
type SceneSession struct {
	ID             uuid.UUID     `json:"id"`
	SessionID      uuid.UUID     `json:"session_id"`
	PresentationID uuid.UUID     `json:"presentation_id"`
	Layers         []*Layer      `json:"layers"`
	ActiveLayerID  string        `json:"active_layer_id"`
	Tracking       TrackingData  `json:"tracking"`
	Settings       SceneSettings `json:"settings"`
	CreatedAt      time.Time     `json:"created_at"`
}

// SceneStats summarizes a scene session.
type SceneStats struct {
	ObjectCount      int `json:"object_count"`
	InteractionCount int `json:"interaction_count"`
	ActiveLayerCount int `json:"active_layer_count"`
}
