package mediasvc

// FileKindConfig holds the upload constraints of the file provider.
type FileKindConfig struct {
	// MaxSize is the maximum allowed file size in bytes.
	// Default is 20MB.
	MaxSize int64 `env:"MAX_SIZE" default:"20971520"`

	// AllowedExtensions lists accepted file extensions without dot
	AllowedExtensions []string `env:"ALLOWED_EXTENSIONS" default:"pdf,txt,rtf,doc,docx,xls,xlsx,ppt,pptx,odt,odg,odp,ods,odc,odf,odb,csv,xml,zip"`

	// AllowedMIMETypes lists accepted content types as detected from the content
	AllowedMIMETypes []string `env:"ALLOWED_MIME_TYPES" default:"application/pdf,text/plain,application/rtf,application/msword,application/vnd.openxmlformats-officedocument.wordprocessingml.document,application/vnd.ms-excel,application/vnd.openxmlformats-officedocument.spreadsheetml.sheet,application/vnd.ms-powerpoint,application/vnd.openxmlformats-officedocument.presentationml.presentation,application/vnd.oasis.opendocument.text,application/vnd.oasis.opendocument.graphics,application/vnd.oasis.opendocument.presentation,application/vnd.oasis.opendocument.spreadsheet,application/vnd.oasis.opendocument.chart,application/vnd.oasis.opendocument.formula,application/vnd.oasis.opendocument.database,text/csv,text/xml,application/xml,application/zip"`
}

// ImageKindConfig holds the upload constraints of the image provider.
type ImageKindConfig struct {
	MaxSize           int64    `env:"MAX_SIZE" default:"20971520"`
	AllowedExtensions []string `env:"ALLOWED_EXTENSIONS" default:"jpg,jpeg,png,gif,tif,tiff,webp"`
	AllowedMIMETypes  []string `env:"ALLOWED_MIME_TYPES" default:"image/jpeg,image/png,image/gif,image/tiff,image/webp"`
}
