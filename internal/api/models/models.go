package models

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"1.0.0" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc1234" doc:"Git commit hash"`
	BuildDate string `json:"build_date" example:"2025-01-27T10:30:00Z" doc:"Build timestamp"`
	GoVersion string `json:"go_version" example:"go1.24.11" doc:"Go toolchain version"`
	Platform  string `json:"platform" example:"linux/arm64" doc:"Target OS and architecture"`
}

type VersionResponse struct {
	Body VersionData
}

// Stream models
type StreamData struct {
	Name     string   `json:"name" example:"camera0" doc:"Stream name"`
	Port     int      `json:"port" example:"8554" doc:"RTSP listener port"`
	Mount    string   `json:"mount" example:"/stream" doc:"RTSP mount path"`
	URLs     []string `json:"urls" doc:"RTSP URL per host address"`
	Internal string   `json:"internal" example:"127.0.0.1:15000" doc:"Internal UDP address the mount relays from"`
	Group    int      `json:"group" example:"0" doc:"Resolution group index"`
	Codec    string   `json:"codec" example:"H265" doc:"RTP payload codec"`
	Clients  int      `json:"clients" example:"1" doc:"Connected RTSP clients"`
}

type StreamListData struct {
	Streams []StreamData `json:"streams" doc:"Configured RTSP endpoints"`
	Count   int          `json:"count" example:"2" doc:"Number of endpoints"`
}

type StreamListResponse struct {
	Body StreamListData
}

// Lifecycle models
type LifecycleData struct {
	Pipeline string `json:"pipeline" example:"fanout" doc:"Pipeline identifier"`
	State    string `json:"state" example:"running" doc:"idle or running"`
	Clients  int    `json:"clients" example:"1" doc:"Clients counted by the controller"`
	OnDemand bool   `json:"on_demand" doc:"Whether the pipeline starts with the first client"`
}

type LifecycleListData struct {
	Pipelines []LifecycleData `json:"pipelines" doc:"Pipeline lifecycle state"`
}

type LifecycleResponse struct {
	Body LifecycleListData
}

// Device models
type DeviceData struct {
	Path    string `json:"path" example:"/dev/video0" doc:"Device node"`
	Name    string `json:"name" example:"HD USB Camera" doc:"Card name"`
	ID      string `json:"id,omitempty" example:"usb-046d_HD_Webcam-video-index0" doc:"Stable device identifier"`
	Driver  string `json:"driver,omitempty" example:"uvcvideo" doc:"Kernel driver"`
	BusInfo string `json:"bus_info,omitempty" example:"usb-0000:00:14.0-1" doc:"Bus location"`
}

type DeviceListData struct {
	Devices []DeviceData `json:"devices" doc:"V4L2 capture devices"`
	Count   int          `json:"count" example:"1" doc:"Number of devices"`
}

type DeviceListResponse struct {
	Body DeviceListData
}
