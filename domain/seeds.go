package domain

import "time"

type seedSub struct{ id, label string }

type seedItem struct {
	id, label string
	subs      []seedSub
}

type seedCategory struct {
	id, title string
	items     []seedItem
}

var seedChecklists = map[Mode][]seedCategory{
	ModeEducation: {
		{"edu-school-1", "北九州工業高等専門学校", []seedItem{
			{"edu-item-1-1", "産学連携プログラム打合せ", []seedSub{{"edu-sub-1-1-1", "日程調整"}, {"edu-sub-1-1-2", "資料準備"}}},
			{"edu-item-1-2", "共同開発テーマの選定", nil},
		}},
		{"edu-school-2", "小倉商業高等学校", []seedItem{
			{"edu-item-2-1", "地域活性化企画の提案", []seedSub{{"edu-sub-2-1-1", "企画書作成"}}},
		}},
	},
	ModeRecruitment: {
		{"rec-company-1", "株式会社サンプルテック", []seedItem{
			{"rec-item-1-1", "求人票の作成支援", []seedSub{{"rec-sub-1-1-1", "ヒアリング"}, {"rec-sub-1-1-2", "原稿作成"}}},
			{"rec-item-1-2", "採用チャネル選定", nil},
		}},
		{"rec-company-2", "有限会社地域サービス", []seedItem{
			{"rec-item-2-1", "初回面談", []seedSub{{"rec-sub-2-1-1", "日程調整"}}},
		}},
	},
	ModeAISupport: {
		{"ai-1", "株式会社サンプルテック（AI導入）", []seedItem{
			{"ai-item-1-1", "AI活用ニーズヒアリング", []seedSub{{"ai-sub-1-1-1", "キックオフ"}, {"ai-sub-1-1-2", "要件整理"}}},
			{"ai-item-1-2", "PoC（概念実証）実施", nil},
		}},
		{"ai-2", "有限会社地域サービス（AI導入）", []seedItem{
			{"ai-item-2-1", "業務効率化提案", []seedSub{{"ai-sub-2-1-1", "現状分析"}}},
		}},
	},
	ModeSales: {
		{"sales-1", "株式会社サンプルテック（営業）", []seedItem{
			{"sales-item-1-1", "初回商談", []seedSub{{"sales-sub-1-1-1", "アポ取得"}, {"sales-sub-1-1-2", "提案資料準備"}}},
			{"sales-item-1-2", "フォローアップ", nil},
		}},
		{"sales-2", "有限会社地域サービス（営業）", []seedItem{
			{"sales-item-2-1", "ニーズヒアリング", []seedSub{{"sales-sub-2-1-1", "日程調整"}}},
		}},
	},
	ModeProjects: {
		{"proj-1", "高専モノづくり共創プログラム", []seedItem{
			{"proj-item-1-1", "北九州高専・ポリテクとの共同開発", []seedSub{{"proj-sub-1-1-1", "キックオフミーティング"}, {"proj-sub-1-1-2", "開発テーマ選定"}}},
			{"proj-item-1-2", "オリジナル教具・遊具の共同開発", nil},
		}},
		{"proj-2", "サンプルテック採用支援", []seedItem{
			{"proj-item-2-1", "エンジニア採用の伴走支援", []seedSub{{"proj-sub-2-1-1", "求人票作成"}, {"proj-sub-2-1-2", "面接日程調整"}}},
		}},
		{"proj-3", "地域活性化×高校連携", []seedItem{
			{"proj-item-3-1", "小倉商業・西南女学院との広報連携", []seedSub{{"proj-sub-3-1-1", "企画書作成"}}},
		}},
	},
}

// SeedChecklist returns the starter checklist of a mode. Items are due in a
// month and sub-items in a week, all starting today.
func SeedChecklist(m Mode, now time.Time) Checklist {
	today := FormatDate(now)
	nextMonth := FormatDate(now.AddDate(0, 1, 0))
	nextWeek := FormatDate(now.AddDate(0, 0, 7))

	seeds := seedChecklists[m]
	out := make(Checklist, 0, len(seeds))
	for _, sc := range seeds {
		cat := ChecklistCategory{ID: sc.id, Title: sc.title, IconID: m.DefaultIcon(), Items: make([]ChecklistItem, 0, len(sc.items))}
		for _, si := range sc.items {
			item := ChecklistItem{ID: si.id, Label: si.label, Deadline: nextMonth, StartDate: today, SubItems: make([]ChecklistSubItem, 0, len(si.subs))}
			for _, ss := range si.subs {
				item.SubItems = append(item.SubItems, ChecklistSubItem{ID: ss.id, Label: ss.label, Deadline: nextWeek, StartDate: today})
			}
			cat.Items = append(cat.Items, item)
		}
		out = append(out, cat)
	}
	return out
}
