package procon

// Category groups the columns of the GetState.csv feed.
type Category string

const (
	CategoryTime          Category = "time"
	CategoryAnalog        Category = "analog"
	CategoryElectrode     Category = "electrode"
	CategoryTemperature   Category = "temperature"
	CategoryRelay         Category = "relay"
	CategoryDigitalInput  Category = "digital_input"
	CategoryExternalRelay Category = "external_relay"
	CategoryCanister      Category = "canister"
	CategoryConsumption   Category = "consumption"
)

// ColumnCount is the fixed number of data columns in the status feed.
const ColumnCount = 42

type columnRange struct {
	first    int
	count    int
	category Category
}

// columnLayout is ordered by first column and covers 0..ColumnCount-1 without gaps.
var columnLayout = []columnRange{
	{first: 0, count: 1, category: CategoryTime},
	{first: 1, count: 5, category: CategoryAnalog},
	{first: 6, count: 2, category: CategoryElectrode},
	{first: 8, count: 8, category: CategoryTemperature},
	{first: 16, count: 8, category: CategoryRelay},
	{first: 24, count: 4, category: CategoryDigitalInput},
	{first: 28, count: 8, category: CategoryExternalRelay},
	{first: 36, count: 3, category: CategoryCanister},
	{first: 39, count: 3, category: CategoryConsumption},
}

type columnSlot struct {
	category   Category
	categoryID int
}

var columnTable = buildColumnTable()

func buildColumnTable() [ColumnCount]columnSlot {
	var table [ColumnCount]columnSlot
	for _, r := range columnLayout {
		for i := 0; i < r.count; i++ {
			table[r.first+i] = columnSlot{category: r.category, categoryID: i}
		}
	}
	return table
}

// CategoryOf returns the category and the category-local index of a column.
func CategoryOf(column int) (Category, int, bool) {
	if column < 0 || column >= ColumnCount {
		return "", 0, false
	}
	slot := columnTable[column]
	return slot.category, slot.categoryID, true
}

// Categories returns all categories in column order.
func Categories() []Category {
	out := make([]Category, len(columnLayout))
	for i, r := range columnLayout {
		out[i] = r.category
	}
	return out
}

// IsRelay reports whether the category holds relay states.
func (c Category) IsRelay() bool {
	return c == CategoryRelay || c == CategoryExternalRelay
}
