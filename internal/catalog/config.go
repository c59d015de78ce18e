package catalog

// bundleConfigFile is the on-disk JSON shape of a pipeline bundle's
// config.json (spec.md §6 "Pipeline bundle config schema").
type bundleConfigFile struct {
	Name          string               `json:"NAME"`
	Version       string               `json:"VERSION"`
	ContainerInfo containerInfoFile    `json:"CONTAINER_INFO"`
	Variables     []string             `json:"VARIABLES"`
	Steps         []bundleStepFile     `json:"STEPS"`
	Dependencies  []dependencyRefFile  `json:"DEPENDENCIES,omitempty"`
}

// dependencyRefFile names one upstream processing bundle an extraction
// bundle requires a SUCCESS row for.
type dependencyRefFile struct {
	Name    string `json:"NAME"`
	Version string `json:"VERSION"`
}

type containerInfoFile struct {
	Path string `json:"PATH"`
	URI  string `json:"URI"`
}

type bundleStepFile struct {
	Name                   string `json:"NAME"`
	DescriptorFile         string `json:"DESCRIPTOR_FILE"`
	InvocationFile         string `json:"INVOCATION_FILE"`
	TrackerConfigFile      string `json:"TRACKER_CONFIG_FILE"`
	PyBIDSIgnoreFile       string `json:"PYBIDS_IGNORE_FILE"`
	HPCConfigFile          string `json:"HPC_CONFIG_FILE"`
	GeneratePyBIDSDatabase *bool  `json:"GENERATE_PYBIDS_DATABASE"`
	UpdateStatus           *bool  `json:"UPDATE_STATUS"`
}
