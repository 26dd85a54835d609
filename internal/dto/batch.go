package dto

// BatchUploadOptions are the form fields accompanying a batch CSV upload.
type BatchUploadOptions struct {
	TemplateID string `form:"templateId"`
	Notify     bool   `form:"notify"`
}
