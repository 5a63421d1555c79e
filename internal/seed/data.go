package seed

// DemoCreator はデモ用の予想作成者。
type DemoCreator struct {
	UserID      string
	Username    string
	DisplayName string
	Badge       string
}

// AvatarURL はユーザー名から生成したアバター画像のURLを返す。
func (c DemoCreator) AvatarURL() string {
	return "https://api.dicebear.com/7.x/avataaars/svg?seed=" + c.Username
}

// Email はデモユーザーのメールアドレスを返す。
func (c DemoCreator) Email() string {
	return c.Username + "@demo.vipchannel.invalid"
}

// DemoCreators はデモデータとして投入する作成者の一覧。
var DemoCreators = []DemoCreator{
	{UserID: "11111111-1111-1111-1111-111111111111", Username: "Winpro", DisplayName: "Win Pro", Badge: "Expert"},
	{UserID: "22222222-2222-2222-2222-222222222222", Username: "winwin", DisplayName: "Win Win", Badge: "Pro"},
	{UserID: "33333333-3333-3333-3333-333333333333", Username: "Patrickprono", DisplayName: "Patrick Prono", Badge: "Expert"},
	{UserID: "44444444-4444-4444-4444-444444444444", Username: "starwin", DisplayName: "Star Win", Badge: "Pro"},
	{UserID: "55555555-5555-5555-5555-555555555555", Username: "victoirepro", DisplayName: "Victoire Pro", Badge: "Expert"},
}

type match struct {
	home, away  string
	date, time  string
	competition string
}

var matches = []match{
	{"Abbey Hey", "AFC Liverpool", "02/08/2025", "15:00", "FA"},
	{"Ware FC", "Welwyn", "02/08/2025", "15:00", "FA"},
	{"Oldland Abbotonians", "Wallingford & Crowmarsh", "02/08/2025", "15:00", "FA"},
	{"Coleshill Town", "Nuneaton", "02/08/2025", "15:00", "FA"},
	{"March Town United", "Soham Town Rangers", "02/08/2025", "15:00", "FA"},
	{"Bottesford Town", "Melton Town", "02/08/2025", "15:00", "FA"},
	{"AFC Wulfrunians", "Shepshed Dynamo", "02/08/2025", "15:00", "FA"},
	{"Eversley & California", "Horndean", "02/08/2025", "15:00", "FA"},
	{"Cornard United FC", "Woodbridge Town", "02/08/2025", "15:00", "FA"},
	{"City of Liverpool", "Euxton Villa", "02/08/2025", "15:00", "FA"},
	{"Downton", "Fareham Town", "02/08/2025", "15:00", "FA"},
	{"Bashley", "East Cowes Victoria Athletic", "02/08/2025", "15:00", "FA"},
	{"Irlam", "Thackley", "02/08/2025", "15:00", "FA"},
	{"Liversedge", "Wythenshawe Amateurs", "02/08/2025", "15:00", "FA"},
	{"Milton Keynes Irish", "Heybridge Swifts", "02/08/2025", "15:00", "FA"},
	{"St Neots Town", "Great Yarmouth Town", "02/08/2025", "15:00", "FA"},
	{"Shifnal Town", "Coventry United", "02/08/2025", "15:00", "FA"},
	{"AFC Stoneham", "Fleet Town", "02/08/2025", "15:00", "FA"},
	{"Marske United", "Carlisle City", "02/08/2025", "15:00", "FA"},
	{"Alton", "Wincanton Town", "02/08/2025", "15:00", "FA"},
	{"Biggleswade FC", "Welwyn Garden City", "02/08/2025", "15:00", "FA"},
}

// oddsRange はオッズの生成範囲 [min, max)。
type oddsRange struct{ min, max float64 }

// defaultOddsRange は範囲が定義されていない組み合わせに使う。
var defaultOddsRange = oddsRange{1.5, 3.0}

type pick struct {
	label string
	odds  oddsRange
}

type betType struct {
	name  string
	picks []pick
}

var betTypes = []betType{
	{"1X2", []pick{
		{"Victoire 1", oddsRange{1.5, 3.5}},
		{"Nul", oddsRange{2.8, 4.2}},
		{"Victoire 2", oddsRange{1.8, 4.0}},
	}},
	{"BTTS", []pick{
		{"Oui", oddsRange{1.6, 2.4}},
		{"Non", oddsRange{1.4, 2.2}},
	}},
	{"Plus/Moins 2.5", []pick{
		{"Plus de 2.5", oddsRange{1.7, 2.5}},
		{"Moins de 2.5", oddsRange{1.5, 2.3}},
	}},
	{"Handicap", []pick{
		{"Handicap +1", oddsRange{1.3, 1.9}},
		{"Handicap -1", oddsRange{1.8, 2.8}},
		{"Handicap +2", oddsRange{1.1, 1.7}},
	}},
	{"Corner", []pick{
		{"Plus de 9.5", oddsRange{1.8, 2.6}},
		{"Moins de 9.5", oddsRange{1.6, 2.4}},
	}},
	{"Double Chance", []pick{
		{"1X", oddsRange{1.2, 1.8}},
		{"X2", oddsRange{1.3, 1.9}},
		{"12", oddsRange{1.1, 1.6}},
	}},
}

var analyses = []string{
	"Analyse technique approfondie de ce match. L'équipe domicile montre une forme excellente avec 4 victoires sur les 5 derniers matchs.",
	"Statistiques clés: défense solide, attaque efficace. Je recommande ce pari avec confiance basée sur l'historique des confrontations.",
	"Match intéressant avec des cotes attractives. L'analyse des dernières performances suggère une issue favorable.",
	"Pronostic basé sur l'analyse des blessures et de la forme récente des équipes. Pari sûr selon mes calculs.",
	"Excellent rapport risque/récompense sur ce match. Les statistiques H2H favorisent nettement cette prédiction.",
	"Analyse météo et terrain prise en compte. Conditions parfaites pour ce type de pari selon mon expertise.",
	"Form guide détaillé étudié. Cette équipe performe exceptionnellement bien à domicile cette saison.",
	"Pari value détecté après analyse approfondie des cotes et probabilités réelles du marché.",
	"Match clé de la journée! Mon analyse technique indique une probabilité élevée de succès pour ce pronostic.",
	"Expertise terrain: j'ai analysé 15 facteurs différents pour établir ce pronostic avec haute confiance.",
}
