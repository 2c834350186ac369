package envvar

const (
	// Env is the environment variable used to determine the environment
	Env = "MBC_ENV"

	// ServerHTTPPort is the environment variable used to determine the HTTP port
	ServerHTTPPort = "MBC_SERVER_HTTP_PORT"

	// Port is the plain port variable honoured by most container platforms
	Port = "PORT"

	// ModelPath overrides the ONNX model file from the config
	ModelPath = "MBC_MODEL_PATH"

	// MetadataPath overrides the model metadata file from the config
	MetadataPath = "MBC_METADATA_PATH"

	// OnnxRuntimeLib points at the onnxruntime shared library
	OnnxRuntimeLib = "MBC_ONNXRUNTIME_LIB"
)
