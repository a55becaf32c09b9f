package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image/png"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Carmen-Shannon/tracey/engine/model"
	"github.com/Carmen-Shannon/tracey/engine/project"
	"github.com/Carmen-Shannon/tracey/engine/renderer"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startModel(t *testing.T) model.Model {
	t.Helper()
	root := t.TempDir()
	p, err := project.Create(root, "server")
	require.NoError(t, err)
	r := renderer.NewRenderer(renderer.BackendTypeSoftware,
		renderer.WithSize(16, 8), renderer.WithWorkers(2), renderer.WithSeed(1), renderer.WithMaxBounces(1))
	m, err := model.NewModel(model.WithRenderer(r), model.WithProject(p), model.WithProjectRoot(root))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = m.Run(ctx) }()
	t.Cleanup(func() {
		m.Close()
		cancel()
	})
	return m
}

type gqlResponse struct {
	Data   map[string]json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func post(t *testing.T, url, query string, vars map[string]any) gqlResponse {
	t.Helper()
	body, err := json.Marshal(map[string]any{"query": query, "variables": vars})
	require.NoError(t, err)
	resp, err := http.Post(url+"/graphql", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out gqlResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func TestSchemaParses(t *testing.T) {
	m := startModel(t)
	assert.NotPanics(t, func() { NewSchema(m) })
	assert.Panics(t, func() { NewSchema(nil) })
}

func TestQueriesAndMutations(t *testing.T) {
	m := startModel(t)
	ts := httptest.NewServer(NewServer(m).Handler())
	defer ts.Close()

	out := post(t, ts.URL, `{ width height }`, nil)
	require.Empty(t, out.Errors)
	assert.Equal(t, 16, decode[int](t, out.Data["width"]))
	assert.Equal(t, 8, decode[int](t, out.Data["height"]))

	out = post(t, ts.URL, `mutation { render(batches: 1) }`, nil)
	require.Len(t, out.Errors, 1)
	assert.Contains(t, out.Errors[0].Message, model.ErrNoFrame.Error())

	path, err := filepath.Abs(filepath.Join("testdata", "triangle.gltf"))
	require.NoError(t, err)
	out = post(t, ts.URL, `mutation($p: String!) { load(path: $p) }`, map[string]any{"p": path})
	require.Empty(t, out.Errors)
	assert.True(t, decode[bool](t, out.Data["load"]))

	out = post(t, ts.URL, `mutation { createBasicShape(shape: XZ_PLANE, parent: 0) }`, nil)
	require.Empty(t, out.Errors)
	assert.Equal(t, 2, decode[int](t, out.Data["createBasicShape"]))

	out = post(t, ts.URL, `mutation { build }`, nil)
	require.Empty(t, out.Errors)
	out = post(t, ts.URL, `mutation { render(batches: 2) }`, nil)
	require.Empty(t, out.Errors)

	out = post(t, ts.URL, `{ scene { name root nodes { id name parent children mesh } } }`, nil)
	require.Empty(t, out.Errors)
	type node struct {
		ID       int     `json:"id"`
		Name     string  `json:"name"`
		Parent   *int    `json:"parent"`
		Children []int   `json:"children"`
		Mesh     *string `json:"mesh"`
	}
	sc := decode[struct {
		Root  int    `json:"root"`
		Nodes []node `json:"nodes"`
	}](t, out.Data["scene"])
	require.Len(t, sc.Nodes, 3)
	assert.Nil(t, sc.Nodes[0].Parent)
	assert.Equal(t, []int{1, 2}, sc.Nodes[0].Children)
	assert.Equal(t, "tri", sc.Nodes[1].Name)
	assert.NotNil(t, sc.Nodes[1].Mesh)
	assert.Equal(t, "XZPlane", sc.Nodes[2].Name)

	out = post(t, ts.URL, `{ getNode(nodeId: 2) { name transform } }`, nil)
	require.Empty(t, out.Errors)
	n := decode[struct {
		Transform []float64 `json:"transform"`
	}](t, out.Data["getNode"])
	assert.Len(t, n.Transform, 16)

	out = post(t, ts.URL, `{ stats { instances batch batches builds meshes } }`, nil)
	require.Empty(t, out.Errors)
	st := decode[map[string]int](t, out.Data["stats"])
	assert.Equal(t, 2, st["instances"])
	assert.Equal(t, 2, st["batch"])
	assert.Equal(t, 1, st["builds"])
	assert.Equal(t, 2, st["meshes"])

	out = post(t, ts.URL, `mutation { moveCamera(dx: 1, dy: 0, dz: 0) }`, nil)
	require.Empty(t, out.Errors)
	assert.Len(t, decode[[]float64](t, out.Data["moveCamera"]), 3)

	out = post(t, ts.URL, `mutation { lookAt(x: 0, y: 0, z: 0) setCameraPosition(x: 0, y: 1, z: 5) }`, nil)
	require.Empty(t, out.Errors)
	assert.True(t, decode[bool](t, out.Data["setCameraPosition"]))
}

func TestImageQueryAndRoute(t *testing.T) {
	m := startModel(t)
	ts := httptest.NewServer(NewServer(m).Handler())
	defer ts.Close()

	out := post(t, ts.URL, `{ image(thumbnail: 4) }`, nil)
	require.Empty(t, out.Errors)
	raw, err := base64.StdEncoding.DecodeString(decode[string](t, out.Data["image"]))
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, 4, img.Bounds().Dx())
	assert.Equal(t, 2, img.Bounds().Dy())

	resp, err := http.Get(ts.URL + "/image.png")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	full, err := png.Decode(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, 16, full.Bounds().Dx())
}

func TestRecoverableErrors(t *testing.T) {
	m := startModel(t)
	ts := httptest.NewServer(NewServer(m).Handler())
	defer ts.Close()

	for _, q := range []string{
		`mutation { load(path: "/does/not/exist.gltf") }`,
		`mutation { import(path: "/does/not/exist.png") }`,
		`mutation { newProject(name: "") }`,
		`mutation { createBasicShape(shape: CUBE, parent: 9) }`,
		`mutation { render(batches: -1) }`,
		`{ getNode(nodeId: 5) { name } }`,
	} {
		out := post(t, ts.URL, q, nil)
		assert.NotEmpty(t, out.Errors, q)
	}

	resp, err := http.Post(ts.URL+"/graphql", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func dialWS(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	d := websocket.Dialer{Subprotocols: []string{wsProtocol}}
	conn, _, err := d.Dial("ws"+strings.TrimPrefix(url, "http")+"/graphql", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) wsMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg wsMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestSubscriptionOverWebSocket(t *testing.T) {
	m := startModel(t)
	ts := httptest.NewServer(NewServer(m).Handler())
	defer ts.Close()

	conn := dialWS(t, ts.URL)
	require.NoError(t, conn.WriteJSON(wsMessage{Type: msgConnectionInit}))
	assert.Equal(t, msgConnectionAck, readMessage(t, conn).Type)

	require.NoError(t, conn.WriteJSON(wsMessage{Type: msgPing}))
	assert.Equal(t, msgPong, readMessage(t, conn).Type)

	payload, err := json.Marshal(queryRequest{Query: `subscription { nodeAdded { id name } }`})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(wsMessage{ID: "1", Type: msgSubscribe, Payload: payload}))
	require.Eventually(t, func() bool { return m.Events().NodeAdded.Len() == 1 }, 5*time.Second, 10*time.Millisecond)

	out := post(t, ts.URL, `mutation { createBasicShape(shape: TRIANGLE, parent: 0) }`, nil)
	require.Empty(t, out.Errors)

	msg := readMessage(t, conn)
	assert.Equal(t, msgNext, msg.Type)
	assert.Equal(t, "1", msg.ID)
	var next gqlResponse
	require.NoError(t, json.Unmarshal(msg.Payload, &next))
	added := decode[map[string]any](t, next.Data["nodeAdded"])
	assert.Equal(t, "Triangle", added["name"])
	assert.EqualValues(t, 1, added["id"])

	require.NoError(t, conn.WriteJSON(wsMessage{ID: "1", Type: msgComplete}))
	require.Eventually(t, func() bool { return m.Events().NodeAdded.Len() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestWebSocketProtocolViolations(t *testing.T) {
	m := startModel(t)
	ts := httptest.NewServer(NewServer(m).Handler())
	defer ts.Close()

	expectClose := func(conn *websocket.Conn, code int) {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		_, _, err := conn.ReadMessage()
		require.Error(t, err)
		assert.True(t, websocket.IsCloseError(err, code), err.Error())
	}

	conn := dialWS(t, ts.URL)
	payload, _ := json.Marshal(queryRequest{Query: `subscription { sceneLoaded { name } }`})
	require.NoError(t, conn.WriteJSON(wsMessage{ID: "a", Type: msgSubscribe, Payload: payload}))
	expectClose(conn, closeUnauthorized)

	conn = dialWS(t, ts.URL)
	require.NoError(t, conn.WriteJSON(wsMessage{Type: msgConnectionInit}))
	readMessage(t, conn)
	require.NoError(t, conn.WriteJSON(wsMessage{Type: msgConnectionInit}))
	expectClose(conn, closeTooManyInitRequests)

	conn = dialWS(t, ts.URL)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	expectClose(conn, closeInvalidMessage)
}

func TestWebSocketInitTimeout(t *testing.T) {
	m := startModel(t)
	ts := httptest.NewServer(NewServer(m, WithInitTimeout(50*time.Millisecond)).Handler())
	defer ts.Close()

	conn := dialWS(t, ts.URL)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, closeInitTimeout))
}

func TestServeShutsDownOnCancel(t *testing.T) {
	m := startModel(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() { errs <- NewServer(m, WithShutdownGrace(time.Second)).ServeListener(ctx, ln) }()

	url := "http://" + ln.Addr().String()
	require.Eventually(t, func() bool {
		resp, err := http.Get(url + "/image.png")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-errs:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
