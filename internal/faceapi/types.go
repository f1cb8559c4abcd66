package faceapi

// HealthResponse is the backend's liveness report.
type HealthResponse struct {
	Status               string `json:"status"`
	Message              string `json:"message,omitempty"`
	Timestamp            string `json:"timestamp,omitempty"`
	TotalRegisteredFaces *int   `json:"total_registered_faces,omitempty"`
	Version              string `json:"version,omitempty"`
}

// RegisterRequest enrolls a named face from a base64 image.
type RegisterRequest struct {
	Name        string `json:"name" binding:"required,min=1,max=100"`
	Image       string `json:"image" binding:"required"`
	Description string `json:"description,omitempty" binding:"max=500"`
}

type RegisterResponse struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	Data    *RegisterData `json:"data,omitempty"`
}

type RegisterData struct {
	FaceID             int64   `json:"face_id"`
	PersonName         string  `json:"person_name,omitempty"`
	Confidence         float64 `json:"confidence"`
	EmbeddingDimension int     `json:"embedding_dimension,omitempty"`
	Description        string  `json:"description,omitempty"`
}

// RecognizeRequest asks the backend to identify every face in an image.
// A nil Threshold is replaced by the gateway default before forwarding.
type RecognizeRequest struct {
	Image     string   `json:"image" binding:"required"`
	Threshold *float64 `json:"threshold,omitempty"`
}

type RecognizeResponse struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Data    *RecognizeData `json:"data,omitempty"`
}

type RecognizeData struct {
	TotalFaces    int              `json:"total_faces"`
	ThresholdUsed float64          `json:"threshold_used"`
	Faces         []RecognizedFace `json:"faces"`
}

type RecognizedFace struct {
	FaceIndex           int          `json:"face_index"`
	BoundingBox         *BoundingBox `json:"bounding_box,omitempty"`
	DetectionConfidence float64      `json:"detection_confidence"`
	MatchFound          bool         `json:"match_found"`
	PersonName          string       `json:"person_name,omitempty"`
	MatchSimilarity     float64      `json:"match_similarity"`
	FaceID              int64        `json:"face_id,omitempty"`
	BestSimilarity      float64      `json:"best_similarity"`
}

// BoundingBox is expressed in pixel corners of the submitted image.
type BoundingBox struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// CompareRequest asks whether two images show the same person.
type CompareRequest struct {
	Image1    string   `json:"image1" binding:"required"`
	Image2    string   `json:"image2" binding:"required"`
	Threshold *float64 `json:"threshold,omitempty"`
}

type CompareResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Data    *CompareData `json:"data,omitempty"`
}

type CompareData struct {
	Similarity   float64    `json:"similarity"`
	IsSamePerson bool       `json:"is_same_person"`
	Threshold    float64    `json:"threshold"`
	Confidence   float64    `json:"confidence"`
	Image1Info   *ImageInfo `json:"image1_info,omitempty"`
	Image2Info   *ImageInfo `json:"image2_info,omitempty"`
}

type ImageInfo struct {
	FacesCount          int     `json:"faces_count"`
	DetectionConfidence float64 `json:"detection_confidence"`
}

type ListResponse struct {
	Success bool      `json:"success"`
	Message string    `json:"message"`
	Data    *ListData `json:"data,omitempty"`
}

type ListData struct {
	TotalFaces int        `json:"total_faces"`
	Faces      []FaceInfo `json:"faces"`
}

type FaceInfo struct {
	FaceID             int64  `json:"face_id"`
	Name               string `json:"name"`
	EmbeddingDimension int    `json:"embedding_dimension,omitempty"`
	Description        string `json:"description,omitempty"`
	CreatedAt          string `json:"created_at,omitempty"`
}

type DeleteResponse struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	DeletedFaceID *int64 `json:"deleted_face_id,omitempty"`
}

// Outcome is implemented by every backend reply that carries a success flag.
type Outcome interface {
	Succeeded() bool
	Text() string
}

func (r *RegisterResponse) Succeeded() bool { return r != nil && r.Success }

func (r *RegisterResponse) Text() string {
	if r == nil {
		return ""
	}
	return r.Message
}

func (r *RecognizeResponse) Succeeded() bool { return r != nil && r.Success }

func (r *RecognizeResponse) Text() string {
	if r == nil {
		return ""
	}
	return r.Message
}

func (r *CompareResponse) Succeeded() bool { return r != nil && r.Success }

func (r *CompareResponse) Text() string {
	if r == nil {
		return ""
	}
	return r.Message
}

func (r *ListResponse) Succeeded() bool { return r != nil && r.Success }

func (r *ListResponse) Text() string {
	if r == nil {
		return ""
	}
	return r.Message
}

func (r *DeleteResponse) Succeeded() bool { return r != nil && r.Success }

func (r *DeleteResponse) Text() string {
	if r == nil {
		return ""
	}
	return r.Message
}
