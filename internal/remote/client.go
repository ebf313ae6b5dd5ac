// internal/remote/client.go
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/Corphon/ScriptDeskMCP/internal/models"
)

// Client 远端实体API的HTTP实现
// 路径约定: /api/screenplays/{id}/{collection}[/{entityID}]
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClient 创建远端API客户端
func NewClient(baseURL, apiKey string) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("远端API地址未提供")
	}

	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// doJSON 发送请求并解析JSON响应；out 为 nil 时忽略响应体
func (c *Client) doJSON(ctx context.Context, method, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("序列化请求失败: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("远端API调用失败(%d): %s", resp.StatusCode, string(data))
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func collectionPath(screenplayID, collection string) string {
	return "/api/screenplays/" + url.PathEscape(screenplayID) + "/" + collection
}

func entityPath(screenplayID, collection, entityID string) string {
	return collectionPath(screenplayID, collection) + "/" + url.PathEscape(entityID)
}

// 集合操作的泛型骨架，四种实体共用同一套端点形态

func listEntities[T any](c *Client, ctx context.Context, screenplayID, collection string) ([]T, error) {
	var out []T
	if err := c.doJSON(ctx, http.MethodGet, collectionPath(screenplayID, collection), nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}

func createEntity[T any](c *Client, ctx context.Context, screenplayID, collection string, entity T) (*T, error) {
	var out T
	if err := c.doJSON(ctx, http.MethodPost, collectionPath(screenplayID, collection), entity, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func updateEntity[T any](c *Client, ctx context.Context, screenplayID, collection, entityID string, entity T) (*T, error) {
	var out T
	if err := c.doJSON(ctx, http.MethodPut, entityPath(screenplayID, collection, entityID), entity, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func bulkCreateEntities[T any](c *Client, ctx context.Context, screenplayID, collection string, entities []T) ([]T, error) {
	var out []T
	if err := c.doJSON(ctx, http.MethodPost, collectionPath(screenplayID, collection)+"/bulk", entities, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}

// ---------------------------------------------------
// 场景

func (c *Client) ListScenes(ctx context.Context, screenplayID string) ([]models.Scene, error) {
	return listEntities[models.Scene](c, ctx, screenplayID, "scenes")
}

func (c *Client) CreateScene(ctx context.Context, screenplayID string, scene models.Scene) (*models.Scene, error) {
	return createEntity(c, ctx, screenplayID, "scenes", scene)
}

func (c *Client) UpdateScene(ctx context.Context, screenplayID string, scene models.Scene) (*models.Scene, error) {
	return updateEntity(c, ctx, screenplayID, "scenes", scene.ID, scene)
}

func (c *Client) DeleteScene(ctx context.Context, screenplayID, sceneID string) error {
	return c.doJSON(ctx, http.MethodDelete, entityPath(screenplayID, "scenes", sceneID), nil, nil)
}

func (c *Client) BulkCreateScenes(ctx context.Context, screenplayID string, scenes []models.Scene) ([]models.Scene, error) {
	return bulkCreateEntities(c, ctx, screenplayID, "scenes", scenes)
}

func (c *Client) DeleteAllScenes(ctx context.Context, screenplayID string) error {
	return c.doJSON(ctx, http.MethodDelete, collectionPath(screenplayID, "scenes"), nil, nil)
}

// ---------------------------------------------------
// 角色

func (c *Client) ListCharacters(ctx context.Context, screenplayID string) ([]models.Character, error) {
	return listEntities[models.Character](c, ctx, screenplayID, "characters")
}

func (c *Client) CreateCharacter(ctx context.Context, screenplayID string, character models.Character) (*models.Character, error) {
	return createEntity(c, ctx, screenplayID, "characters", character)
}

func (c *Client) UpdateCharacter(ctx context.Context, screenplayID string, character models.Character) (*models.Character, error) {
	return updateEntity(c, ctx, screenplayID, "characters", character.ID, character)
}

func (c *Client) DeleteCharacter(ctx context.Context, screenplayID, characterID string) error {
	return c.doJSON(ctx, http.MethodDelete, entityPath(screenplayID, "characters", characterID), nil, nil)
}

func (c *Client) BulkCreateCharacters(ctx context.Context, screenplayID string, characters []models.Character) ([]models.Character, error) {
	return bulkCreateEntities(c, ctx, screenplayID, "characters", characters)
}

func (c *Client) DeleteAllCharacters(ctx context.Context, screenplayID string) error {
	return c.doJSON(ctx, http.MethodDelete, collectionPath(screenplayID, "characters"), nil, nil)
}

// ---------------------------------------------------
// 场地

func (c *Client) ListLocations(ctx context.Context, screenplayID string) ([]models.Location, error) {
	return listEntities[models.Location](c, ctx, screenplayID, "locations")
}

func (c *Client) CreateLocation(ctx context.Context, screenplayID string, location models.Location) (*models.Location, error) {
	return createEntity(c, ctx, screenplayID, "locations", location)
}

func (c *Client) UpdateLocation(ctx context.Context, screenplayID string, location models.Location) (*models.Location, error) {
	return updateEntity(c, ctx, screenplayID, "locations", location.ID, location)
}

func (c *Client) DeleteLocation(ctx context.Context, screenplayID, locationID string) error {
	return c.doJSON(ctx, http.MethodDelete, entityPath(screenplayID, "locations", locationID), nil, nil)
}

func (c *Client) BulkCreateLocations(ctx context.Context, screenplayID string, locations []models.Location) ([]models.Location, error) {
	return bulkCreateEntities(c, ctx, screenplayID, "locations", locations)
}

func (c *Client) DeleteAllLocations(ctx context.Context, screenplayID string) error {
	return c.doJSON(ctx, http.MethodDelete, collectionPath(screenplayID, "locations"), nil, nil)
}

// ---------------------------------------------------
// 道具

func (c *Client) ListProps(ctx context.Context, screenplayID string) ([]models.Prop, error) {
	return listEntities[models.Prop](c, ctx, screenplayID, "props")
}

func (c *Client) CreateProp(ctx context.Context, screenplayID string, prop models.Prop) (*models.Prop, error) {
	return createEntity(c, ctx, screenplayID, "props", prop)
}

func (c *Client) UpdateProp(ctx context.Context, screenplayID string, prop models.Prop) (*models.Prop, error) {
	return updateEntity(c, ctx, screenplayID, "props", prop.ID, prop)
}

func (c *Client) DeleteProp(ctx context.Context, screenplayID, propID string) error {
	return c.doJSON(ctx, http.MethodDelete, entityPath(screenplayID, "props", propID), nil, nil)
}

func (c *Client) BulkCreateProps(ctx context.Context, screenplayID string, props []models.Prop) ([]models.Prop, error) {
	return bulkCreateEntities(c, ctx, screenplayID, "props", props)
}

func (c *Client) DeleteAllProps(ctx context.Context, screenplayID string) error {
	return c.doJSON(ctx, http.MethodDelete, collectionPath(screenplayID, "props"), nil, nil)
}

// ---------------------------------------------------
// 关联

func (c *Client) SyncRelationships(ctx context.Context, screenplayID string, graph *models.RelationshipGraph) error {
	return c.doJSON(ctx, http.MethodPut, collectionPath(screenplayID, "relationships"), graph, nil)
}

func (c *Client) BatchPropAssociation(ctx context.Context, screenplayID, propID string, linkSceneIDs, unlinkSceneIDs []string) ([]models.Scene, error) {
	payload := struct {
		LinkSceneIDs   []string `json:"link_scene_ids"`
		UnlinkSceneIDs []string `json:"unlink_scene_ids"`
	}{
		LinkSceneIDs:   linkSceneIDs,
		UnlinkSceneIDs: unlinkSceneIDs,
	}

	var out []models.Scene
	if err := c.doJSON(ctx, http.MethodPost, entityPath(screenplayID, "props", propID)+"/scenes", payload, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []models.Scene{}
	}
	return out, nil
}
