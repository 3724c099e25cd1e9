package web

import (
	"context"
	"image"
	"image/png"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"path"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jnb666/nonlin/nnet"
	"github.com/jnb666/nonlin/surface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNetwork(t *testing.T) *nnet.Network {
	conf := nnet.Config{Model: "web_test", Inputs: 9, Bias: 0.1}.AddLayers(
		nnet.Linear{Nout: 2},
		nnet.Activation{Atype: "softplus"},
		nnet.Linear{Nout: 1},
		nnet.Activation{Atype: "exp"},
	)
	net, err := nnet.New(conf)
	require.NoError(t, err)
	net.InitWeights(rand.New(rand.NewSource(1)))
	return net
}

func testSession(t *testing.T) *Session {
	nnet.DataDir = t.TempDir()
	conf, err := NewConfig("web_test")
	require.NoError(t, err)
	conf.Sample.Bound = 1
	conf.Sample.Step = 0.1
	conf.Sample.DumpPath = ""
	conf.Render.Count = 10
	sess := NewSession(testNetwork(t), conf)
	t.Cleanup(sess.Close)
	return sess
}

func get(t *testing.T, client *http.Client, url string) (*http.Response, string) {
	resp, err := client.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestNewConfig(t *testing.T) {
	nnet.DataDir = t.TempDir()
	conf, err := NewConfig("model")
	require.NoError(t, err)
	assert.Equal(t, DefaultAddr, conf.Addr)
	assert.Equal(t, 1.5, conf.Sample.Bound)
	assert.Equal(t, 260.0, conf.Render.Rot)

	yml := "addr: \":9000\"\nsample:\n  bound: 2\nrender:\n  lim: 5\n  cmap: jet\n"
	require.NoError(t, os.WriteFile(path.Join(nnet.DataDir, "model.yaml"), []byte(yml), 0o644))
	conf, err = NewConfig("model")
	require.NoError(t, err)
	assert.Equal(t, ":9000", conf.Addr)
	assert.Equal(t, 2.0, conf.Sample.Bound)
	assert.Equal(t, 0.01, conf.Sample.Step)
	assert.Equal(t, 5.0, conf.Render.Lim)
	assert.Equal(t, "jet", conf.Render.Cmap)
	assert.Equal(t, 260.0, conf.Render.Rot)

	conf.Render.Rot = 45
	require.NoError(t, conf.Save())
	conf, err = NewConfig("model")
	require.NoError(t, err)
	assert.Equal(t, 45.0, conf.Render.Rot)

	require.NoError(t, os.WriteFile(path.Join(nnet.DataDir, "bad.yaml"), []byte("sample: [1, 2"), 0o644))
	_, err = NewConfig("bad")
	assert.Error(t, err)
}

func TestConfigFields(t *testing.T) {
	nnet.DataDir = t.TempDir()
	conf, err := NewConfig("model")
	require.NoError(t, err)
	var names []string
	for _, f := range conf.Fields() {
		names = append(names, f.Name)
		if f.Name == "sample.es" {
			assert.True(t, f.Boolean)
			assert.False(t, f.On)
		}
	}
	assert.Contains(t, names, "sample.bound")
	assert.NotContains(t, names, "sample.dump_path")
	assert.Contains(t, names, "render.rot")
	assert.Contains(t, names, "render.lim")

	require.NoError(t, conf.Set("render.rot", "120"))
	require.NoError(t, conf.Set("render.label", "NN"))
	require.NoError(t, conf.Set("sample.es", "true"))
	require.NoError(t, conf.Set("render.count", "20"))
	assert.Equal(t, 120.0, conf.Render.Rot)
	assert.Equal(t, "NN", conf.Render.Label)
	assert.True(t, conf.Sample.ES)
	assert.Equal(t, 20, conf.Render.Count)

	assert.Error(t, conf.Set("render.rot", "abc"))
	assert.Error(t, conf.Set("render.count", ""))
	assert.Error(t, conf.Set("render.bogus", "1"))
	assert.Error(t, conf.Set("rot", "1"))
	assert.Equal(t, 120.0, conf.Render.Rot)

	dump := conf.Sample.DumpPath
	assert.Error(t, conf.Set("sample.dump_path", "/etc/anything.csv"))
	assert.Equal(t, dump, conf.Sample.DumpPath)
	for _, val := range []string{".nan", ".inf", "-.inf"} {
		assert.Error(t, conf.Set("sample.bound", val), val)
	}
	assert.Equal(t, 1.5, conf.Sample.Bound)
}

func TestSession(t *testing.T) {
	sess := testSession(t)
	_, err := sess.Figure()
	assert.ErrorIs(t, err, ErrNoGrid)

	require.NoError(t, sess.Start(context.Background()))
	sess.Wait()
	running, count, total, err := sess.Status()
	require.NoError(t, err)
	assert.False(t, running)
	assert.Equal(t, 400, total)
	assert.Equal(t, 400, count)

	grid := sess.Grid()
	require.NotNil(t, grid)
	assert.Equal(t, 20, grid.Size())
	fig, err := sess.Figure()
	require.NoError(t, err)
	min, max := fig.XLim()
	assert.Equal(t, -1.0, min)
	assert.InDelta(t, 0.9, max, 1e-9)

	conf := sess.Config()
	conf.Render.Lim = 5
	sess.SetConfig(conf)
	fig, err = sess.Figure()
	require.NoError(t, err)
	min, max = fig.XLim()
	assert.Equal(t, 0.0, min)
	assert.Equal(t, 5.0, max)

	f, err := sess.Filters()
	require.NoError(t, err)
	r, c := f.Dims()
	assert.Equal(t, 9, r)
	assert.Equal(t, 2, c)
}

func TestSessionError(t *testing.T) {
	sess := testSession(t)
	conf := sess.Config()
	conf.Sample.ES = true
	sess.SetConfig(conf)
	require.NoError(t, sess.Start(context.Background()))
	sess.Wait()
	_, _, _, err := sess.Status()
	assert.Error(t, err)
	assert.Nil(t, sess.Grid())

	assert.ErrorIs(t, NewSession(nil, conf).Start(context.Background()), ErrNoModel)

	for _, bad := range []surface.Options{
		{Bound: math.NaN(), Step: 0.1},
		{Bound: math.Inf(1), Step: 0.1},
		{Bound: 1.5, Step: 1e-7},
	} {
		conf.Sample = bad
		sess.SetConfig(conf)
		require.NoError(t, sess.Start(context.Background()))
		sess.Wait()
		running, _, _, err := sess.Status()
		assert.False(t, running)
		assert.Error(t, err)
		assert.Nil(t, sess.Grid())
	}
}

func TestServer(t *testing.T) {
	sess := testSession(t)
	r, err := NewRouter(sess)
	require.NoError(t, err)
	srv := httptest.NewServer(r)
	defer srv.Close()
	client := srv.Client()

	resp, body := get(t, client, srv.URL+"/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "no surface computed yet")

	resp, _ = get(t, client, srv.URL+"/plot.svg")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = get(t, client, srv.URL+"/heatmap.png")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = get(t, client, srv.URL+"/start")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	sess.Wait()

	resp, body = get(t, client, srv.URL+"/view")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "<svg")
	assert.Contains(t, body, sess.Grid().ID)

	resp, body = get(t, client, srv.URL+"/plot.svg")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/svg+xml", resp.Header.Get("Content-Type"))
	assert.Contains(t, body, "firing rate")

	resp, body = get(t, client, srv.URL+"/plot.png")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(body, "\x89PNG"))

	resp, body = get(t, client, srv.URL+"/heatmap.png")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	img, err := png.Decode(strings.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, 20*heatmapScale, img.Bounds().Dx())
	assert.Equal(t, 20*heatmapScale, img.Bounds().Dy())

	resp, body = get(t, client, srv.URL+"/filters.png")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_, err = png.Decode(strings.NewReader(body))
	assert.NoError(t, err)

	resp, body = get(t, client, srv.URL+"/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "nonlin_points_evaluated_total")
	assert.Contains(t, body, "nonlin_grid_seconds")
}

func TestConfigPage(t *testing.T) {
	sess := testSession(t)
	r, err := NewRouter(sess)
	require.NoError(t, err)
	srv := httptest.NewServer(r)
	defer srv.Close()
	client := srv.Client()

	resp, body := get(t, client, srv.URL+"/config")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "render.cmap")

	form := url.Values{}
	for _, f := range sess.Config().Fields() {
		form.Set(f.Name, f.Value)
	}
	form.Set("render.rot", "not a number")
	resp, err = client.PostForm(srv.URL+"/config/save", form)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, 260.0, sess.Config().Render.Rot)

	form.Set("render.rot", "30")
	form.Set("render.cmap", "bogus")
	resp, err = client.PostForm(srv.URL+"/config/save", form)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	form.Set("render.cmap", "coolwarm")
	form.Set("sample.dump_path", "/etc/anything.csv")
	resp, err = client.PostForm(srv.URL+"/config/save", form)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 30.0, sess.Config().Render.Rot)
	assert.Equal(t, "coolwarm", sess.Config().Render.Cmap)
	assert.Equal(t, "", sess.Config().Sample.DumpPath)
	assert.FileExists(t, path.Join(nnet.DataDir, "web_test.yaml"))
}

func TestWebsocket(t *testing.T) {
	sess := testSession(t)
	r, err := NewRouter(sess)
	require.NoError(t, err)
	srv := httptest.NewServer(r)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return sess.Hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, sess.Start(context.Background()))
	var msgs []string
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	for {
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		msgs = append(msgs, string(msg))
		if !strings.HasPrefix(string(msg), "progress:") {
			break
		}
	}
	t.Log(msgs)
	require.NotEmpty(t, msgs)
	assert.Equal(t, "done:"+sess.Grid().ID, msgs[len(msgs)-1])
	assert.Equal(t, []string{"progress:80:400", "progress:160:400", "progress:240:400", "progress:320:400", "progress:400:400"}, msgs[:len(msgs)-1])
}

func TestAuth(t *testing.T) {
	sess := testSession(t)
	conf := sess.Config()
	conf.User, conf.Password = "user", "secret"
	sess.SetConfig(conf)
	r, err := NewRouter(sess)
	require.NoError(t, err)
	srv := httptest.NewServer(r)
	defer srv.Close()

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{Jar: jar}

	resp, _ := get(t, client, srv.URL+"/config")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest("GET", srv.URL+"/config", nil)
	require.NoError(t, err)
	req.SetBasicAuth("user", "wrong")
	resp, err = client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req.SetBasicAuth("user", "secret")
	resp, err = client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// cookie is enough from now on
	resp, _ = get(t, client, srv.URL+"/config")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWritePNG(t *testing.T) {
	w := httptest.NewRecorder()
	writePNG(w, image.NewNRGBA(image.Rect(0, 0, 4, 3)))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	img, err := png.Decode(w.Body)
	require.NoError(t, err)
	assert.Equal(t, 4, img.Bounds().Dx())

	w = httptest.NewRecorder()
	writePNG(w, image.NewNRGBA(image.Rect(0, 0, 0, 0)))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotEqual(t, "image/png", w.Header().Get("Content-Type"))
}
