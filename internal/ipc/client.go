package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, client: rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func call[T any](c *Client, method string, req any) (*T, error) {
	var resp T
	if err := c.client.Call(ServiceName+"."+method, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	return call[StatusResponse](c, "Status", Empty{})
}

// Start asks a stopped daemon to resume its services.
func (c *Client) Start() (*StartResponse, error) {
	return call[StartResponse](c, "Start", Empty{})
}

// Stop asks the daemon to stop its services.
func (c *Client) Stop() (*StopResponse, error) {
	return call[StopResponse](c, "Stop", Empty{})
}

// SceneStart begins background generation for a scene.
func (c *Client) SceneStart(sceneID int64) (*StartSceneResponse, error) {
	return call[StartSceneResponse](c, "SceneStart", SceneRequest{SceneID: sceneID})
}

// SceneStatus returns the scene, its shots, and progress.
func (c *Client) SceneStatus(sceneID int64) (*SceneStatus, error) {
	return call[SceneStatus](c, "SceneStatus", SceneRequest{SceneID: sceneID})
}

// ShotRetry regenerates one shot and the shots after it.
func (c *Client) ShotRetry(sceneID, shotID int64) (*RetryShotResponse, error) {
	return call[RetryShotResponse](c, "ShotRetry", ShotRequest{SceneID: sceneID, ShotID: shotID})
}

// SceneAssemble builds the final video. It blocks until assembly finishes.
func (c *Client) SceneAssemble(sceneID int64) (*AssembleResponse, error) {
	return call[AssembleResponse](c, "SceneAssemble", SceneRequest{SceneID: sceneID})
}

// SceneCancel stops the active run of a scene.
func (c *Client) SceneCancel(sceneID int64) (*CancelResponse, error) {
	return call[CancelResponse](c, "SceneCancel", SceneRequest{SceneID: sceneID})
}

// SceneImport creates a scene from a manifest path on the daemon host.
func (c *Client) SceneImport(manifestPath string) (*ImportSceneResponse, error) {
	return call[ImportSceneResponse](c, "SceneImport", ImportRequest{ManifestPath: manifestPath})
}

// SceneList lists scenes, optionally filtered by status.
func (c *Client) SceneList(statuses []string) (*SceneListResponse, error) {
	return call[SceneListResponse](c, "SceneList", SceneListRequest{Statuses: statuses})
}

// ShotAttempts lists every recorded attempt for a shot.
func (c *Client) ShotAttempts(sceneID, shotID int64) (*AttemptListResponse, error) {
	return call[AttemptListResponse](c, "ShotAttempts", ShotRequest{SceneID: sceneID, ShotID: shotID})
}

// JobStatus returns one generation job.
func (c *Client) JobStatus(jobID string) (*Job, error) {
	return call[Job](c, "JobStatus", JobRequest{JobID: jobID})
}

// JobList returns the jobs the daemon still tracks.
func (c *Client) JobList() (*JobListResponse, error) {
	return call[JobListResponse](c, "JobList", Empty{})
}

// LogTail returns daemon log lines.
func (c *Client) LogTail(req LogTailRequest) (*LogTailResponse, error) {
	return call[LogTailResponse](c, "LogTail", req)
}

// TestNotification sends a test notification through the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	return call[TestNotificationResponse](c, "TestNotification", Empty{})
}
