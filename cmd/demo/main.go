// cmd/demo/main.go
// 演示程序：在内存远端上走一遍完整的剧本生命周期
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/Corphon/ScriptDeskMCP/internal/models"
	"github.com/Corphon/ScriptDeskMCP/internal/remote"
	"github.com/Corphon/ScriptDeskMCP/internal/services"
)

const demoScript = `# 第一幕

INT. KITCHEN - DAY

= 莎拉发现桌上的信。

SARAH
这是什么？

EXT. HARBOR - NIGHT

= 码头交接。

DETECTIVE RIVERA
(低声)
把东西给我。

SARAH
你先放了他。
`

const revisedScript = `# 第一幕

EXT. KITCHEN - DAY

= 莎拉发现桌上的信。

SARAH
这是什么？

INT. WAREHOUSE - NIGHT

RIVERA
计划有变。

EXT. HARBOR - NIGHT

DETECTIVE RIVERA
把东西给我。
`

func main() {
	ctx := context.Background()
	screenplayID := "demo"

	store := buildStore()

	// 1. 首次重扫：从全文导入场景、角色与场地
	result, err := store.RescanScript(ctx, screenplayID, demoScript)
	if err != nil {
		log.Fatalf("首次重扫失败: %v", err)
	}
	fmt.Printf("首次重扫: %d 个场景, 新角色 %d, 新场地 %d\n",
		len(result.Scenes), result.NewCharacters, result.NewLocations)

	for _, scene := range store.Scenes(screenplayID) {
		fmt.Printf("  场景 #%d %-28s %s\n", scene.Number, scene.Heading, scene.Synopsis)
	}

	// 2. 手工编辑一个场景
	scenes := store.Scenes(screenplayID)
	first := scenes[0]
	first.Status = models.SceneStatusReview
	first.TimingMinutes = 3.5
	if _, err := store.UpdateScene(ctx, screenplayID, first); err != nil {
		log.Fatalf("更新场景失败: %v", err)
	}
	fmt.Printf("\n场景 %q 进入 review 状态\n", first.Heading)

	// 3. 创建道具并关联到场景
	prop, err := store.CreateProp(ctx, screenplayID, models.Prop{Name: "神秘的信"})
	if err != nil {
		log.Fatalf("创建道具失败: %v", err)
	}
	if _, err := store.LinkPropToScenes(ctx, screenplayID, prop.ID, []string{first.ID}, nil); err != nil {
		log.Fatalf("关联道具失败: %v", err)
	}
	fmt.Printf("道具 %q 已关联到场景 #%d\n", prop.Name, first.Number)

	// 4. 修订版重扫：厨房改外景、新增仓库场景，元数据应随匹配结转
	result, err = store.RescanScript(ctx, screenplayID, revisedScript)
	if err != nil {
		log.Fatalf("二次重扫失败: %v", err)
	}
	fmt.Printf("\n二次重扫: 匹配 %d 个, 新增 %d 个\n", result.MatchedCount, result.NewCount)

	for _, scene := range store.Scenes(screenplayID) {
		fmt.Printf("  场景 #%d %-28s 状态=%s 道具=%d\n",
			scene.Number, scene.Heading, scene.Status, len(scene.Fountain.Tags.PropIDs))
	}

	// 5. 派生关联图
	graph := store.Graph(screenplayID)
	fmt.Printf("\n关联图: %d 个场景, %d 个角色, %d 个场地\n",
		len(graph.Scenes), len(graph.Characters), len(graph.Locations))

	for _, character := range store.Characters(screenplayID) {
		scenes := store.GetCharacterScenes(screenplayID, character.ID)
		fmt.Printf("  %s (别名 %v) 出现在 %d 个场景\n", character.Name, character.Aliases, len(scenes))
	}
}

// buildStore 在内存远端上组装状态存储
func buildStore() *services.ScreenplayService {
	memory := remote.NewMemoryStore()
	policy := services.ReconcilePolicy{
		FreshnessWindow:   5 * time.Minute,
		TieBreakThreshold: time.Second,
	}

	return services.NewScreenplayService(
		memory,
		services.NewReconcileService(policy, nil),
		services.NewRelationshipService(),
		services.NewRescanService(),
		services.NewParserService(),
		nil,
	)
}
